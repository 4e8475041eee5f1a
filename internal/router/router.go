package router

import (
	"net/http"

	"github.com/craftbid/backend/internal/auth"
	"github.com/craftbid/backend/internal/events"
	"github.com/craftbid/backend/internal/handlers"
	"github.com/craftbid/backend/internal/middleware"
)

// New returns an http.Handler serving the API under /api/v1. Every route
// except register/login runs behind bearer-token auth.
func New(
	authHandler *auth.Handler,
	leadHandler *handlers.LeadHandler,
	interestHandler *handlers.InterestHandler,
	dashHandler *handlers.DashboardHandler,
	eventHandler *events.Handler,
	validator middleware.TokenValidator,
) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	authed := middleware.RequireAuth(validator)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	handle("POST "+base+"/leads", leadHandler.CreateLead)
	handle("GET "+base+"/leads", leadHandler.ListLeads)
	handle("GET "+base+"/leads/{id}", leadHandler.GetLead)
	handle("POST "+base+"/leads/{id}/status", leadHandler.AdvanceLead)
	handle("POST "+base+"/leads/{id}/cancel", leadHandler.CancelLead)
	handle("POST "+base+"/leads/{id}/assign", leadHandler.DirectAssign)

	handle("POST "+base+"/leads/{id}/interests", interestHandler.SubmitInterest)
	handle("GET "+base+"/leads/{id}/interests", interestHandler.ListByLead)
	handle("GET "+base+"/interests", interestHandler.ListMine)
	handle("POST "+base+"/interests/{id}/withdraw", interestHandler.Withdraw)
	handle("POST "+base+"/interests/{id}/reject", interestHandler.Reject)
	handle("POST "+base+"/interests/{id}/accept", interestHandler.Accept)

	handle("GET "+base+"/account/me", dashHandler.GetMe)
	handle("GET "+base+"/credit-ledger", dashHandler.ListCreditLedger)
	handle("POST "+base+"/credit/top-up", dashHandler.TopUp)

	handle("GET "+base+"/events", eventHandler.List)
	handle("GET "+base+"/events/stream", eventHandler.Stream)

	return mux
}
