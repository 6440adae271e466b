package api

import "net/http"

func whoAmIHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, actor)
	})
}
