package service

import (
	"errors"
	"strconv"

	"spinner/internal/biz"
	"spinner/internal/game/slot"

	"github.com/google/wire"
	"github.com/shopspring/decimal"
	kerrors "github.com/yola1107/kratos/v2/errors"
	"github.com/yola1107/kratos/v2/log"
	"github.com/yola1107/kratos/v2/transport/http"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewPushHub, NewSlotService)

// SlotService exposes the slot engine over HTTP and wires the push hub
// into the usecase as its event sink.
type SlotService struct {
	uc  *biz.SpinUsecase
	hub *PushHub
	log *log.Helper
}

// NewSlotService new a slot service.
func NewSlotService(uc *biz.SpinUsecase, hub *PushHub, logger log.Logger) *SlotService {
	uc.SetSink(hub)
	return &SlotService{uc: uc, hub: hub, log: log.NewHelper(logger)}
}

// RegisterRoutes mounts the game API and the websocket push endpoint.
func (s *SlotService) RegisterRoutes(srv *http.Server) {
	r := srv.Route("/v1")
	r.POST("/enter", s.Enter)
	r.POST("/leave", s.Leave)
	r.POST("/spin", s.Spin)
	r.POST("/spin/start", s.StartSpin)
	r.POST("/spin/stop", s.StopSpin)
	r.POST("/spin/slam", s.SlamStop)
	r.GET("/spin/slam", s.SlamStatus)
	r.GET("/state", s.State)
	r.GET("/balance", s.Balance)
	r.GET("/config", s.BetConfig)
	r.GET("/orders", s.Orders)
	r.POST("/grid", s.UpdateGrid)
	r.POST("/settings", s.UpdateSettings)
	r.POST("/reset", s.Reset)

	srv.HandleFunc("/ws", s.hub.HandleWS)
}

type enterRequest struct {
	PlayerID string `json:"playerId"`
	Balance  string `json:"balance"`
}

type playerRequest struct {
	PlayerID string `json:"playerId"`
}

type spinRequest struct {
	PlayerID string `json:"playerId"`
	Bet      string `json:"bet"`
	Lines    int    `json:"lines"`
}

type slamRequest struct {
	PlayerID string `json:"playerId"`
	Reel     *int   `json:"reel"` // 省略表示急停全部滚轴
}

type gridRequest struct {
	PlayerID string `json:"playerId"`
	Reels    int    `json:"reels"`
	Rows     int    `json:"rows"`
}

type settingsRequest struct {
	PlayerID     string              `json:"playerId"`
	Animation    *slot.AnimationConf `json:"animation,omitempty"`
	PaylineCount *int                `json:"paylineCount,omitempty"`
	MaskEnabled  *bool               `json:"maskEnabled,omitempty"`
}

func (s *SlotService) Enter(ctx http.Context) error {
	var req enterRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	balance := decimal.Zero
	if req.Balance != "" {
		d, err := decimal.NewFromString(req.Balance)
		if err != nil {
			return kerrors.BadRequest("INVALID_PARAMS", "bad balance: "+req.Balance)
		}
		balance = d
	}
	st, err := s.uc.Enter(ctx, req.PlayerID, balance)
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, st)
}

func (s *SlotService) Leave(ctx http.Context) error {
	var req playerRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	if err := s.uc.Leave(ctx, req.PlayerID); err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"status": "ok"})
}

func (s *SlotService) Spin(ctx http.Context) error {
	req, bet, err := s.bindSpin(ctx)
	if err != nil {
		return err
	}
	resp, err := s.uc.Spin(ctx, req.PlayerID, bet, req.Lines)
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, resp)
}

func (s *SlotService) StartSpin(ctx http.Context) error {
	req, bet, err := s.bindSpin(ctx)
	if err != nil {
		return err
	}
	spinID, err := s.uc.StartSpin(ctx, req.PlayerID, bet, req.Lines)
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"spinId": spinID})
}

func (s *SlotService) bindSpin(ctx http.Context) (*spinRequest, decimal.Decimal, error) {
	var req spinRequest
	if err := ctx.Bind(&req); err != nil {
		return nil, decimal.Zero, kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	bet, err := decimal.NewFromString(req.Bet)
	if err != nil {
		return nil, decimal.Zero, kerrors.BadRequest("INVALID_PARAMS", "bad bet: "+req.Bet)
	}
	return &req, bet, nil
}

func (s *SlotService) StopSpin(ctx http.Context) error {
	var req playerRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	if err := s.uc.StopSpin(req.PlayerID); err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"status": "stopping"})
}

func (s *SlotService) SlamStop(ctx http.Context) error {
	var req slamRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	reel := -1
	if req.Reel != nil {
		reel = *req.Reel
	}
	if err := s.uc.SlamStop(req.PlayerID, reel); err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"status": "slammed"})
}

func (s *SlotService) SlamStatus(ctx http.Context) error {
	status, err := s.uc.SlamStatus(ctx.Query().Get("playerId"))
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, status)
}

func (s *SlotService) State(ctx http.Context) error {
	st, err := s.uc.State(ctx.Query().Get("playerId"))
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, st)
}

func (s *SlotService) Balance(ctx http.Context) error {
	balance, err := s.uc.Balance(ctx, ctx.Query().Get("playerId"))
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"balance": balance.String()})
}

func (s *SlotService) BetConfig(ctx http.Context) error {
	bc, err := s.uc.BetConfig(ctx, ctx.Query().Get("playerId"))
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, bc)
}

func (s *SlotService) Orders(ctx http.Context) error {
	playerID := ctx.Query().Get("playerId")
	limit := 0
	if v := ctx.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	orders, err := s.uc.Orders(ctx, playerID, limit)
	if err != nil {
		return apiError(err)
	}
	return ctx.Result(200, orders)
}

func (s *SlotService) UpdateGrid(ctx http.Context) error {
	var req gridRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	if err := s.uc.UpdateGrid(req.PlayerID, req.Reels, req.Rows); err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"status": "ok"})
}

func (s *SlotService) UpdateSettings(ctx http.Context) error {
	var req settingsRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	patch := slot.SettingsPatch{
		Animation:    req.Animation,
		PaylineCount: req.PaylineCount,
		MaskEnabled:  req.MaskEnabled,
	}
	if err := s.uc.UpdateSettings(req.PlayerID, patch); err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"status": "ok"})
}

func (s *SlotService) Reset(ctx http.Context) error {
	var req playerRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	}
	if err := s.uc.Reset(req.PlayerID); err != nil {
		return apiError(err)
	}
	return ctx.Result(200, map[string]string{"status": "ready"})
}

// apiError maps engine sentinel errors onto transport error codes.
func apiError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, slot.InvalidRequestParams):
		return kerrors.BadRequest("INVALID_PARAMS", err.Error())
	case errors.Is(err, slot.InsufficientBalance):
		return kerrors.BadRequest("INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, slot.SpinInProgress):
		return kerrors.Conflict("SPIN_IN_PROGRESS", err.Error())
	case errors.Is(err, slot.NoActiveSession), errors.Is(err, slot.NotInitialized):
		return kerrors.NotFound("NO_SESSION", err.Error())
	default:
		var e *kerrors.Error
		if errors.As(err, &e) {
			return e
		}
		return kerrors.InternalServer("INTERNAL", err.Error())
	}
}
