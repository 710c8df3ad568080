package sheets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

type fakeRemote struct {
	headers      []string
	appended     [][]interface{}
	headerWrites int

	appendErrs []error // popped per call
}

func (f *fakeRemote) readHeaderRow(ctx context.Context, spreadsheetID, sheetName string) ([]string, error) {
	return f.headers, nil
}

func (f *fakeRemote) writeHeaderRow(ctx context.Context, spreadsheetID, sheetName string, labels []string) error {
	f.headerWrites++
	f.headers = labels
	return nil
}

func (f *fakeRemote) appendRow(ctx context.Context, spreadsheetID, sheetName string, row []interface{}) error {
	if len(f.appendErrs) > 0 {
		err := f.appendErrs[0]
		f.appendErrs = f.appendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.appended = append(f.appended, row)
	return nil
}

func testWriter(fake *fakeRemote) (*Writer, *[]bool) {
	w := NewWriter()
	w.newRemote = func(ctx context.Context, ts oauth2.TokenSource) (remote, error) {
		return fake, nil
	}
	forces := []bool{}
	return w, &forces
}

func staticTokens(forces *[]bool) TokenSourceFunc {
	return func(ctx context.Context, forceRefresh bool) (oauth2.TokenSource, error) {
		*forces = append(*forces, forceRefresh)
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), nil
	}
}

func TestWriterHeaders(t *testing.T) {
	t.Run("WritesHeadersOnEmptySheet", func(t *testing.T) {
		fake := &fakeRemote{}
		w, forces := testWriter(fake)

		err := w.Write(context.Background(), staticTokens(forces), "ss1", "Sheet1",
			[]string{"Email", "Name"}, map[string]string{"Email": "a@b.com", "Name": "Ada"})
		assert.NoError(t, err)
		assert.Equal(t, 1, fake.headerWrites)
		assert.Equal(t, []string{"Email", "Name"}, fake.headers)
		assert.Equal(t, []interface{}{"a@b.com", "Ada"}, fake.appended[0])
	})

	t.Run("SecondWriteDoesNotDuplicateHeaders", func(t *testing.T) {
		fake := &fakeRemote{}
		w, forces := testWriter(fake)
		tokens := staticTokens(forces)

		for i := 0; i < 2; i++ {
			err := w.Write(context.Background(), tokens, "ss1", "Sheet1",
				[]string{"Email"}, map[string]string{"Email": "a@b.com"})
			assert.NoError(t, err)
		}
		assert.Equal(t, 1, fake.headerWrites)
		assert.Len(t, fake.appended, 2)
	})

	t.Run("ExistingHeadersLeftAlone", func(t *testing.T) {
		fake := &fakeRemote{headers: []string{"Name", "Email"}}
		w, forces := testWriter(fake)

		err := w.Write(context.Background(), staticTokens(forces), "ss1", "Sheet1",
			[]string{"Email", "Name"}, map[string]string{"Email": "a@b.com", "Name": "Ada"})
		assert.NoError(t, err)
		assert.Equal(t, 0, fake.headerWrites)
		// Row follows the live header order, not the schema order.
		assert.Equal(t, []interface{}{"Ada", "a@b.com"}, fake.appended[0])
	})
}

func TestAlignRow(t *testing.T) {
	t.Run("PositionalAlignment", func(t *testing.T) {
		row := alignRow(
			[]string{"Email", "Name", "Phone"},
			[]string{"Email", "Name"},
			map[string]string{"Name": "Ada", "Email": "a@b.com"},
		)
		assert.Equal(t, []interface{}{"a@b.com", "Ada", ""}, row)
	})

	t.Run("UnknownLabelsAppendedAfter", func(t *testing.T) {
		row := alignRow(
			[]string{"Email"},
			[]string{"Email", "Source"},
			map[string]string{"Email": "a@b.com", "Source": "landing", "zextra": "1"},
		)
		assert.Equal(t, []interface{}{"a@b.com", "landing", "1"}, row)
	})
}

func TestWriterAuthRetry(t *testing.T) {
	t.Run("RetriesOnceWithForcedRefresh", func(t *testing.T) {
		fake := &fakeRemote{
			headers:    []string{"Email"},
			appendErrs: []error{&googleapi.Error{Code: 401}},
		}
		w, forces := testWriter(fake)

		err := w.Write(context.Background(), staticTokens(forces), "ss1", "Sheet1",
			[]string{"Email"}, map[string]string{"Email": "a@b.com"})
		assert.NoError(t, err)
		assert.Equal(t, []bool{false, true}, *forces)
		assert.Len(t, fake.appended, 1)
	})

	t.Run("SecondAuthFailureIsTerminal", func(t *testing.T) {
		fake := &fakeRemote{
			headers:    []string{"Email"},
			appendErrs: []error{&googleapi.Error{Code: 401}, &googleapi.Error{Code: 401}},
		}
		w, forces := testWriter(fake)

		err := w.Write(context.Background(), staticTokens(forces), "ss1", "Sheet1",
			[]string{"Email"}, map[string]string{"Email": "a@b.com"})
		var we *WriteError
		assert.True(t, errors.As(err, &we))
		assert.Equal(t, ReasonAuth, we.Reason)
		assert.Equal(t, []bool{false, true}, *forces)
	})
}

func TestWriterFailureReasons(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"Quota429", &googleapi.Error{Code: 429}, ReasonQuota},
		{"Quota403", &googleapi.Error{Code: 403, Message: "Quota exceeded for requests"}, ReasonQuota},
		{"Missing404", &googleapi.Error{Code: 404}, ReasonMissing},
		{"Timeout", context.DeadlineExceeded, ReasonTimeout},
		{"Opaque", errors.New("connection reset"), ReasonRemote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeRemote{headers: []string{"Email"}, appendErrs: []error{tc.err}}
			w, forces := testWriter(fake)

			err := w.Write(context.Background(), staticTokens(forces), "ss1", "Sheet1",
				[]string{"Email"}, map[string]string{"Email": "a@b.com"})
			var we *WriteError
			assert.True(t, errors.As(err, &we))
			assert.Equal(t, tc.reason, we.Reason)
		})
	}
}

func TestWriterNoCredential(t *testing.T) {
	fake := &fakeRemote{headers: []string{"Email"}}
	w, _ := testWriter(fake)

	tokens := func(ctx context.Context, forceRefresh bool) (oauth2.TokenSource, error) {
		return nil, errors.New("no stored credential")
	}
	err := w.Write(context.Background(), tokens, "ss1", "Sheet1",
		[]string{"Email"}, map[string]string{"Email": "a@b.com"})
	var we *WriteError
	assert.True(t, errors.As(err, &we))
	assert.Equal(t, ReasonNoCredential, we.Reason)
}
