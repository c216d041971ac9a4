package middlewares

// gin context keys
const (
	CtxRequestID  = "request_id"
	CtxUserID     = "auth.userID"
	CtxEmail      = "auth.email"
	CtxProject    = "authz.project"
	CtxMembership = "authz.membership"
)
