package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"

	"account_sync/internal/mockvision"
)

func main() {
	flags := pflag.NewFlagSet("mock", pflag.ExitOnError)
	addr := flags.String("addr", ":8080", "listen address")
	token := flags.String("token", "", "required x-token value, empty accepts any")
	prefix := flags.String("prefix", "/mock", "path prefix; point vision.baseURL at http://<addr><prefix>")
	_ = flags.Parse(os.Args[1:])

	mock := mockvision.New(*token)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Mount(*prefix, mock.Handler())

	server := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("mock vision listening on %s%s", *addr, *prefix)
	log.Fatal(server.ListenAndServe())
}
