package middleware

import (
	"context"
	"net/http"

	scs "github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

type contextKey string

const ThreadIDKey contextKey = "thread_id"

// sessionThreadKey is where the conversation thread lives in the session
const sessionThreadKey = "thread_id"

// SessionThread makes sure every session carries a conversation thread id
// and exposes it on the request context. It must run inside
// sess.LoadAndSave.
func SessionThread(sess *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sess.GetString(r.Context(), sessionThreadKey)
			if id == "" {
				id = uuid.NewString()
				sess.Put(r.Context(), sessionThreadKey, id)
			}
			r = r.WithContext(context.WithValue(r.Context(), ThreadIDKey, id))
			next.ServeHTTP(w, r)
		})
	}
}

// ThreadID returns the session thread id, or "" outside SessionThread
func ThreadID(ctx context.Context) string {
	id, _ := ctx.Value(ThreadIDKey).(string)
	return id
}
