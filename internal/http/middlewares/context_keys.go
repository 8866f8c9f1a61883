package middlewares

// Keys under which middlewares stash per-request values on the gin context.
const (
	CtxRequestID = "request_id"
	CtxPrincipal = "auth.principal"
)
