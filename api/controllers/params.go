package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxGuestIDLength = 64

func chiParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
