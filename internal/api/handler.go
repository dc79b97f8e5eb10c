package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"rulemaker-backend/internal/builder"
	"rulemaker-backend/internal/chat"
	"rulemaker-backend/internal/collab"
	"rulemaker-backend/internal/negotiate"
	"rulemaker-backend/internal/schema"
	"rulemaker-backend/internal/session"
)

type Handler struct {
	svc    *chat.Service
	secret string
	ttl    time.Duration
}

func NewHandler(svc *chat.Service, secret string, ttl time.Duration) *Handler {
	return &Handler{svc: svc, secret: secret, ttl: ttl}
}

// CreateSession handles POST /v1/sessions.
func (h *Handler) CreateSession(c *fiber.Ctx) error {
	var body struct {
		GroupID string `json:"group_id"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return BadRequestError("Invalid request body")
		}
	}

	sess, err := h.svc.StartSession(c.UserContext(), body.GroupID)
	if err != nil {
		return mapWorkflowError(err)
	}
	token, err := GenerateSessionToken(sess.ID, h.secret, h.ttl)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": sess.ID,
		"token":      token,
	})
}

// DeleteSession handles DELETE /v1/sessions.
func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	h.svc.EndSession(c.UserContext(), currentSession(c))
	return c.SendStatus(fiber.StatusNoContent)
}

// ListGroups handles GET /v1/groups.
func (h *Handler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.svc.ListGroups(c.UserContext())
	if err != nil {
		return mapWorkflowError(err)
	}
	return c.JSON(fiber.Map{"groups": groups})
}

// CreateGroup handles POST /v1/groups.
func (h *Handler) CreateGroup(c *fiber.Ctx) error {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	if body.Name == "" {
		return BadRequestError("Group name is required")
	}
	group, err := h.svc.CreateGroup(c.UserContext(), body.Name, body.Description)
	if err != nil {
		return mapWorkflowError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

// SwitchGroup handles POST /v1/session/group.
func (h *Handler) SwitchGroup(c *fiber.Ctx) error {
	var body struct {
		GroupID string `json:"group_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.GroupID == "" {
		return BadRequestError("group_id is required")
	}
	sess := currentSession(c)
	if err := h.svc.SwitchGroup(c.UserContext(), sess, body.GroupID); err != nil {
		return mapWorkflowError(err)
	}
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(fiber.Map{
		"group_id":   sess.GroupID,
		"datapoints": sess.Schema.All(),
	})
}

// ConnectLLM handles POST /v1/session/llm.
func (h *Handler) ConnectLLM(c *fiber.Ctx) error {
	var creds collab.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return BadRequestError("Invalid request body")
	}
	if creds.Provider == "" || creds.APIKey == "" {
		return BadRequestError("provider and api_key are required")
	}
	if err := h.svc.ConnectLLM(c.UserContext(), currentSession(c), creds); err != nil {
		return mapWorkflowError(err)
	}
	return c.JSON(fiber.Map{"connected": true})
}

// builderView adds CanTranslate to the raw builder state.
type builderView struct {
	*builder.State
	CanTranslate bool `json:"can_translate"`
}

// GetBuilder handles GET /v1/session/builder.
func (h *Handler) GetBuilder(c *fiber.Ctx) error {
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(builderView{State: sess.Builder, CanTranslate: sess.Builder.CanTranslate()})
}

// SetCondition handles POST /v1/session/builder/condition.
func (h *Handler) SetCondition(c *fiber.Ctx) error {
	var body struct {
		Condition string `json:"condition"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	sess.Builder.SetCondition(body.Condition)
	return c.JSON(builderView{State: sess.Builder, CanTranslate: sess.Builder.CanTranslate()})
}

// SetThen handles POST /v1/session/builder/then.
func (h *Handler) SetThen(c *fiber.Ctx) error {
	return h.setOutcome(c, func(s *builder.State, o builder.Outcome) error {
		return s.SetThen(o)
	})
}

// SetElse handles POST /v1/session/builder/else. An empty outcome removes
// the ELSE branch.
func (h *Handler) SetElse(c *fiber.Ctx) error {
	return h.setOutcome(c, func(s *builder.State, o builder.Outcome) error {
		return s.SetElse(o)
	})
}

func (h *Handler) setOutcome(c *fiber.Ctx, apply func(*builder.State, builder.Outcome) error) error {
	var body struct {
		Outcome string `json:"outcome"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	if err := apply(sess.Builder, builder.Outcome(body.Outcome)); err != nil {
		return BadRequestError(err.Error())
	}
	return c.JSON(builderView{State: sess.Builder, CanTranslate: sess.Builder.CanTranslate()})
}

// AddEdgeCase handles POST /v1/session/builder/edge-cases.
func (h *Handler) AddEdgeCase(c *fiber.Ctx) error {
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	index := sess.Builder.AddEdgeCase()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"index":      index,
		"edge_cases": sess.Builder.EdgeCases,
	})
}

// UpdateEdgeCase handles PATCH /v1/session/builder/edge-cases/:index.
func (h *Handler) UpdateEdgeCase(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return BadRequestError("Invalid edge case index")
	}
	var body struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	if err := sess.Builder.UpdateEdgeCase(index, body.Field, body.Value); err != nil {
		return BadRequestError(err.Error())
	}
	return c.JSON(fiber.Map{"edge_cases": sess.Builder.EdgeCases})
}

// RemoveEdgeCase handles DELETE /v1/session/builder/edge-cases/:index.
func (h *Handler) RemoveEdgeCase(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return BadRequestError("Invalid edge case index")
	}
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	if err := sess.Builder.RemoveEdgeCase(index); err != nil {
		return BadRequestError(err.Error())
	}
	return c.JSON(fiber.Map{"edge_cases": sess.Builder.EdgeCases})
}

// ClearBuilder handles POST /v1/session/builder/clear.
func (h *Handler) ClearBuilder(c *fiber.Ctx) error {
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	sess.Builder.Clear()
	return c.JSON(builderView{State: sess.Builder, CanTranslate: false})
}

// GetThread handles GET /v1/session/thread.
func (h *Handler) GetThread(c *fiber.Ctx) error {
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(renderThread(sess))
}

// Translate handles POST /v1/session/translate. The call blocks until the
// translation lands on the thread; a submit while one is in flight returns
// the thread unchanged.
func (h *Handler) Translate(c *fiber.Ctx) error {
	sess := currentSession(c)
	if err := h.svc.SubmitForTranslation(c.UserContext(), sess); err != nil {
		return mapWorkflowError(err)
	}
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(renderThread(sess))
}

// withFlow runs one mutating edit against a negotiation row.
func (h *Handler) withFlow(c *fiber.Ctx, edit func(*negotiate.Flow, int) error) error {
	entryID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return BadRequestError("Invalid negotiation id")
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return BadRequestError("Invalid row index")
	}
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	flow, ok := sess.Negotiations[entryID]
	if !ok {
		return NotFoundError("negotiation", c.Params("id"))
	}
	if err := edit(flow, index); err != nil {
		return BadRequestError(err.Error())
	}
	return c.JSON(NegotiationView{Rows: flow.Rows(), Saved: flow.Saved(), CanSave: flow.CanSave()})
}

// SetRowKind handles POST /v1/session/negotiations/:id/rows/:index/kind.
func (h *Handler) SetRowKind(c *fiber.Ctx) error {
	var body struct {
		Type string `json:"type"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	return h.withFlow(c, func(f *negotiate.Flow, i int) error {
		return f.SetKind(i, schema.Kind(body.Type))
	})
}

// AddRowValues handles POST /v1/session/negotiations/:id/rows/:index/values:
// it stages the comma-separated input and commits it to the row's value list.
func (h *Handler) AddRowValues(c *fiber.Ctx) error {
	var body struct {
		Input string `json:"input"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	return h.withFlow(c, func(f *negotiate.Flow, i int) error {
		if err := f.SetBuffer(i, body.Input); err != nil {
			return err
		}
		return f.AddEnumValues(i)
	})
}

// RemoveRowValue handles DELETE /v1/session/negotiations/:id/rows/:index/values/:value.
func (h *Handler) RemoveRowValue(c *fiber.Ctx) error {
	value := c.Params("value")
	return h.withFlow(c, func(f *negotiate.Flow, i int) error {
		return f.RemoveEnumValue(i, value)
	})
}

// SaveNegotiation handles POST /v1/session/negotiations/:id/save.
func (h *Handler) SaveNegotiation(c *fiber.Ctx) error {
	entryID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return BadRequestError("Invalid negotiation id")
	}
	sess := currentSession(c)
	if err := h.svc.SaveNegotiation(c.UserContext(), sess, entryID); err != nil {
		return mapWorkflowError(err)
	}
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(renderThread(sess))
}

// AcceptProposal handles POST /v1/session/proposals/:id/accept.
func (h *Handler) AcceptProposal(c *fiber.Ctx) error {
	return h.proposalAction(c, h.svc.AcceptProposal)
}

// SaveAndTest handles POST /v1/session/proposals/:id/save-and-test.
func (h *Handler) SaveAndTest(c *fiber.Ctx) error {
	return h.proposalAction(c, h.svc.SaveAndTest)
}

func (h *Handler) proposalAction(c *fiber.Ctx, action func(ctx context.Context, sess *session.Session, entryID int) error) error {
	entryID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return BadRequestError("Invalid proposal id")
	}
	sess := currentSession(c)
	if err := action(c.UserContext(), sess, entryID); err != nil {
		return mapWorkflowError(err)
	}
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(renderThread(sess))
}

// RefuseProposal handles POST /v1/session/proposals/:id/refuse.
func (h *Handler) RefuseProposal(c *fiber.Ctx) error {
	sess := currentSession(c)
	h.svc.RefuseProposal(c.UserContext(), sess)
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(renderThread(sess))
}

// GetTest handles GET /v1/session/test.
func (h *Handler) GetTest(c *fiber.Ctx) error {
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(renderTest(sess))
}

// PutTestField handles PUT /v1/session/test/fields/:name. A blank value
// clears the field, which omits it from the next run's context.
func (h *Handler) PutTestField(c *fiber.Ctx) error {
	var body struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	sess := currentSession(c)
	sess.Lock()
	defer sess.Unlock()
	if sess.Test.Rule == nil {
		return BadRequestError("No rule armed for testing")
	}
	name := c.Params("name")
	if body.Value == "" {
		delete(sess.Test.Raw, name)
	} else {
		sess.Test.Raw[name] = body.Value
	}
	return c.JSON(renderTest(sess))
}

// RunTest handles POST /v1/session/test/run.
func (h *Handler) RunTest(c *fiber.Ctx) error {
	var body struct {
		RequestDescription string `json:"request_description"`
	}
	if err := c.BodyParser(&body); err != nil {
		return BadRequestError("Invalid request body")
	}
	sess := currentSession(c)
	if err := h.svc.RunTest(c.UserContext(), sess, body.RequestDescription); err != nil {
		return mapWorkflowError(err)
	}
	sess.Lock()
	defer sess.Unlock()
	return c.JSON(renderTest(sess))
}
