package main

import (
    "errors"
    "net/http"

    "golang.org/x/crypto/bcrypt"
)

var errInvalidCredentials = errors.New("invalid credentials")

// hashPassword takes a plaintext password and returns a bcrypt hash.  If hashing
// fails the program panics because it is a programmer error.
func hashPassword(password string) string {
    hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
    if err != nil {
        panic(err)
    }
    return string(hash)
}

// checkPasswordHash verifies a plaintext password against a stored bcrypt hash.
// It returns nil if the password matches, or an error otherwise.
func checkPasswordHash(password, hash string) error {
    return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// requireAdmin wraps handlers that expose diagnostics or simulate hardware.
// Credentials are taken from HTTP basic auth and checked against the users in
// the configuration; only admin accounts are let through.  The node has no
// browser UI, so there are no sessions.
func requireAdmin(cfgMgr *ConfigManager, handler func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        username, password, ok := r.BasicAuth()
        if !ok {
            w.Header().Set("WWW-Authenticate", `Basic realm="weathernode"`)
            http.Error(w, "unauthenticated", http.StatusUnauthorized)
            return
        }
        user, err := cfgMgr.Authenticate(username, password)
        if err != nil {
            http.Error(w, "invalid credentials", http.StatusUnauthorized)
            return
        }
        if !user.Admin {
            http.Error(w, "forbidden", http.StatusForbidden)
            return
        }
        handler(w, r, user)
    }
}
