package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sheetform/SheetForm/auth"
	"github.com/sheetform/SheetForm/config"
	"github.com/sheetform/SheetForm/db"
	"github.com/sheetform/SheetForm/handlers"
)

func main() {
	db.InitDB()
	auth.InitStore()
	handlers.InitPipeline()
	r := mux.NewRouter()

	// Public submission channels carry their own per-config CORS
	// policy inside the pipeline, so they stay outside the dashboard
	// CORS middleware. Registered first so they win the match.
	public := r.NewRoute().Subrouter()
	public.HandleFunc("/api/external/submit/{apiHash}", handlers.ExternalSubmit).Methods("POST")
	public.HandleFunc("/api/external/submit/{apiHash}", handlers.ExternalPreflight).Methods("OPTIONS")
	public.HandleFunc("/api/external/config/{apiHash}", handlers.ExternalConfigInfo).Methods("GET")
	public.HandleFunc("/api/docs/{apiHash}", handlers.APIDocs).Methods("GET")
	public.HandleFunc("/embed/form/{formId}", handlers.EmbedForm).Methods("GET")
	public.HandleFunc("/embed/form/{formId}/submit", handlers.EmbedSubmit).Methods("POST")
	public.HandleFunc("/embed/form/{formId}/submit", handlers.EmbedPreflight).Methods("OPTIONS")
	public.HandleFunc("/api/public/forms/{id}", handlers.PublicGetForm).Methods("GET")

	// Dashboard CORS for the React front end.
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{config.FrontendURL()},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	dash := r.NewRoute().Subrouter()
	dash.Use(c.Handler)

	// Auth routes
	dash.HandleFunc("/login", handlers.LoginHandler)
	dash.HandleFunc("/auth/google/callback", handlers.GoogleCallbackHandler)
	dash.HandleFunc("/register", handlers.RegisterHandler).Methods("POST")
	dash.HandleFunc("/login/email", handlers.LoginHandlerEmail).Methods("POST")
	dash.HandleFunc("/logout", handlers.LogoutHandler)
	dash.HandleFunc("/api/me", auth.AuthMiddleware(handlers.GetCurrentUser)).Methods("GET")

	// Owner dashboard routes
	dash.HandleFunc("/", auth.AuthMiddleware(handlers.HomeHandler))
	dash.HandleFunc("/dashboard", auth.AuthMiddleware(handlers.DashboardHandler))
	dash.HandleFunc("/api/forms", auth.AuthMiddleware(handlers.CreateForm)).Methods("POST")
	dash.HandleFunc("/api/forms", auth.AuthMiddleware(handlers.ListForms)).Methods("GET")
	dash.HandleFunc("/api/forms/{id}", auth.AuthMiddleware(handlers.GetForm)).Methods("GET")
	dash.HandleFunc("/api/forms/{id}", auth.AuthMiddleware(handlers.UpdateForm)).Methods("PUT")
	dash.HandleFunc("/api/forms/{id}", auth.AuthMiddleware(handlers.DeleteForm)).Methods("DELETE")
	dash.HandleFunc("/api/forms/{id}/activate", auth.AuthMiddleware(handlers.ActivateForm)).Methods("POST")
	dash.HandleFunc("/api/forms/{id}/deactivate", auth.AuthMiddleware(handlers.DeactivateForm)).Methods("POST")
	dash.HandleFunc("/api/forms/{id}/duplicate", auth.AuthMiddleware(handlers.DuplicateForm)).Methods("POST")
	dash.HandleFunc("/api/forms/{id}/submissions", auth.AuthMiddleware(handlers.ListSubmissions)).Methods("GET")
	dash.HandleFunc("/api/forms/{id}/submissions/export", auth.AuthMiddleware(handlers.ExportSubmissionsCSV)).Methods("GET")
	dash.HandleFunc("/api/forms/{id}/analytics", auth.AuthMiddleware(handlers.GetFormAnalytics)).Methods("GET")
	dash.HandleFunc("/api/forms/{id}/configs", auth.AuthMiddleware(handlers.ListAPIConfigs)).Methods("GET")

	// Connected sheets
	dash.HandleFunc("/api/sheets", auth.AuthMiddleware(handlers.ConnectSheet)).Methods("POST")
	dash.HandleFunc("/api/sheets", auth.AuthMiddleware(handlers.ListSheets)).Methods("GET")
	dash.HandleFunc("/api/sheets/drive", auth.AuthMiddleware(handlers.ListDriveSpreadsheets)).Methods("GET")
	dash.HandleFunc("/api/sheets/create", auth.AuthMiddleware(handlers.CreateAndConnectSheet)).Methods("POST")
	dash.HandleFunc("/api/sheets/{id}", auth.AuthMiddleware(handlers.DeleteSheet)).Methods("DELETE")

	// Endpoint configs
	dash.HandleFunc("/api/configs", auth.AuthMiddleware(handlers.CreateAPIConfig)).Methods("POST")
	dash.HandleFunc("/api/configs/{id}", auth.AuthMiddleware(handlers.GetAPIConfig)).Methods("GET")
	dash.HandleFunc("/api/configs/{id}", auth.AuthMiddleware(handlers.UpdateAPIConfig)).Methods("PUT")
	dash.HandleFunc("/api/configs/{id}", auth.AuthMiddleware(handlers.DeactivateAPIConfig)).Methods("DELETE")
	dash.HandleFunc("/api/configs/{id}/rotate-key", auth.AuthMiddleware(handlers.RotateAPIKey)).Methods("POST")

	// Notifications
	dash.HandleFunc("/api/notifications", auth.AuthMiddleware(handlers.ListNotifications)).Methods("GET")
	dash.HandleFunc("/api/notifications/read-all", auth.AuthMiddleware(handlers.MarkAllNotificationsRead)).Methods("POST")
	dash.HandleFunc("/api/notifications/{id}/read", auth.AuthMiddleware(handlers.MarkNotificationRead)).Methods("POST")

	// Templates
	dash.HandleFunc("/api/templates", handlers.ListTemplates).Methods("GET")
	dash.HandleFunc("/api/templates", auth.AdminMiddleware(handlers.CreateTemplate)).Methods("POST")
	dash.HandleFunc("/api/templates/{id}", handlers.GetTemplate).Methods("GET")
	dash.HandleFunc("/api/templates/{id}", auth.AdminMiddleware(handlers.DeleteTemplate)).Methods("DELETE")
	dash.HandleFunc("/api/templates/{id}/use", auth.AuthMiddleware(handlers.CreateFormFromTemplate)).Methods("POST")

	// Admin
	dash.HandleFunc("/api/admin/users", auth.AdminMiddleware(handlers.AdminListUsers)).Methods("GET")
	dash.HandleFunc("/api/admin/forms", auth.AdminMiddleware(handlers.AdminListForms)).Methods("GET")
	dash.HandleFunc("/api/admin/stats", auth.AdminMiddleware(handlers.AdminStats)).Methods("GET")

	log.Println("Server starting on :8080")
	log.Fatal(http.ListenAndServe(":8080", r))
}
