package api

import "github.com/gofiber/fiber/v2"

// RegisterRoutes wires the gateway surface. Everything under /v1/session
// requires a session token; session creation and the group catalog do not.
func RegisterRoutes(app *fiber.App, h *Handler) {
	v1 := app.Group("/v1")

	v1.Post("/sessions", h.CreateSession)
	v1.Get("/groups", h.ListGroups)
	v1.Post("/groups", h.CreateGroup)

	authed := v1.Group("", h.SessionMiddleware())
	authed.Delete("/sessions", h.DeleteSession)

	sess := authed.Group("/session")
	sess.Post("/group", h.SwitchGroup)
	sess.Post("/llm", h.ConnectLLM)

	sess.Get("/builder", h.GetBuilder)
	sess.Post("/builder/condition", h.SetCondition)
	sess.Post("/builder/then", h.SetThen)
	sess.Post("/builder/else", h.SetElse)
	sess.Post("/builder/edge-cases", h.AddEdgeCase)
	sess.Patch("/builder/edge-cases/:index", h.UpdateEdgeCase)
	sess.Delete("/builder/edge-cases/:index", h.RemoveEdgeCase)
	sess.Post("/builder/clear", h.ClearBuilder)

	sess.Get("/thread", h.GetThread)
	sess.Post("/translate", h.Translate)

	sess.Post("/negotiations/:id/rows/:index/kind", h.SetRowKind)
	sess.Post("/negotiations/:id/rows/:index/values", h.AddRowValues)
	sess.Delete("/negotiations/:id/rows/:index/values/:value", h.RemoveRowValue)
	sess.Post("/negotiations/:id/save", h.SaveNegotiation)

	sess.Post("/proposals/:id/accept", h.AcceptProposal)
	sess.Post("/proposals/:id/save-and-test", h.SaveAndTest)
	sess.Post("/proposals/:id/refuse", h.RefuseProposal)

	sess.Get("/test", h.GetTest)
	sess.Put("/test/fields/:name", h.PutTestField)
	sess.Post("/test/run", h.RunTest)
}
