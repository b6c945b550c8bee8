package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/asquitt/govtech-sniper/internal/auth"
	"github.com/asquitt/govtech-sniper/internal/db"
	"github.com/asquitt/govtech-sniper/internal/impact"
	"github.com/asquitt/govtech-sniper/internal/ingest"
	"github.com/asquitt/govtech-sniper/internal/models"
	"github.com/asquitt/govtech-sniper/internal/snapshot"
)

type Server struct {
	Store  *db.Store
	Echo   *echo.Echo
	DB     *pgxpool.Pool
	Impact *impact.Registry
	Worker *ingest.Worker
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pool *pgxpool.Pool, registry *impact.Registry, worker *ingest.Worker) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Store:  db.NewStore(pool),
		Echo:   e,
		DB:     pool,
		Impact: registry,
		Worker: worker,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")

	// Owner-scoped routes.
	owned := api.Group("")
	owned.Use(auth.Middleware)
	owned.GET("/listings/:noticeID/snapshots", s.handleListSnapshots)
	owned.GET("/listings/:noticeID/diff", s.handleDiff)
	owned.POST("/listings/:noticeID/impact", s.handleImpact)
	owned.GET("/watches", s.handleListWatches)
	owned.POST("/watches", s.handleAddWatch)
	owned.DELETE("/watches/:noticeID", s.handleRemoveWatch)

	// Admin routes.
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/ingest/scan", s.handleTriggerScan)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSnapshots(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}

	noticeID := c.Param("noticeID")
	snaps, err := s.Store.ListSnapshots(c.Request().Context(), noticeID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if snaps == nil {
		snaps = []models.Snapshot{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"notice_id": noticeID,
		"snapshots": snaps,
	})
}

// DiffResponse is the wire form of one snapshot comparison.
type DiffResponse struct {
	NoticeID       string                 `json:"notice_id"`
	FromSnapshotID uuid.UUID              `json:"from_snapshot_id"`
	ToSnapshotID   uuid.UUID              `json:"to_snapshot_id"`
	Changes        []snapshot.FieldChange `json:"changes"`
	SummaryFrom    snapshot.FieldSummary  `json:"summary_from"`
	SummaryTo      snapshot.FieldSummary  `json:"summary_to"`
}

func (s *Server) handleDiff(c echo.Context) error {
	if _, err := auth.GetUserIDFromContext(c); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}

	noticeID := c.Param("noticeID")
	fromID, err := optionalUUID(c.QueryParam("from"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid from snapshot id"})
	}
	toID, err := optionalUUID(c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid to snapshot id"})
	}

	resp, _, err := s.diffListing(c, noticeID, fromID, toID)
	if err != nil {
		return diffError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// diffListing resolves the snapshot window and computes the ordered
// change list. Shared by the diff and impact handlers.
func (s *Server) diffListing(c echo.Context, noticeID string, fromID, toID *uuid.UUID) (*DiffResponse, []snapshot.FieldChange, error) {
	from, to, err := s.Store.DiffWindow(c.Request().Context(), noticeID, fromID, toID)
	if err != nil {
		return nil, nil, err
	}

	summaryFrom := snapshot.Summarize(from.RawPayload)
	summaryTo := snapshot.Summarize(to.RawPayload)
	changes := snapshot.Diff(summaryFrom, summaryTo)

	return &DiffResponse{
		NoticeID:       noticeID,
		FromSnapshotID: from.ID,
		ToSnapshotID:   to.ID,
		Changes:        changes,
		SummaryFrom:    summaryFrom,
		SummaryTo:      summaryTo,
	}, changes, nil
}

func diffError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, db.ErrNotEnoughSnapshots):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not enough snapshots to diff"})
	case errors.Is(err, db.ErrListingNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "listing not found"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

type impactRequest struct {
	ProposalID     string `json:"proposal_id"`
	FromSnapshotID string `json:"from_snapshot_id"`
	ToSnapshotID   string `json:"to_snapshot_id"`
	TopN           int    `json:"top_n"`
}

func (s *Server) handleImpact(c echo.Context) error {
	if _, err := auth.GetUserIDFromContext(c); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}

	var req impactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	proposalID, err := uuid.Parse(req.ProposalID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid proposal_id"})
	}
	fromID, err := optionalUUID(req.FromSnapshotID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid from_snapshot_id"})
	}
	toID, err := optionalUUID(req.ToSnapshotID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid to_snapshot_id"})
	}

	noticeID := c.Param("noticeID")
	diff, changes, err := s.diffListing(c, noticeID, fromID, toID)
	if err != nil {
		return diffError(c, err)
	}

	ctx := c.Request().Context()
	sectionRows, err := s.Store.SectionsByProposal(ctx, proposalID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	requirements, err := s.Store.RequirementsByProposal(ctx, proposalID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	sections := make([]impact.ProposalSection, 0, len(sectionRows))
	for _, row := range sectionRows {
		sec := impact.ProposalSection{
			ProposalID: row.ProposalID,
			SectionID:  row.ID,
			Number:     row.SectionNumber,
			Title:      row.Title,
			Status:     row.Status,
			Content:    row.Content,
		}
		if row.RequirementID != nil {
			sec.RequirementID = *row.RequirementID
		}
		sections = append(sections, sec)
	}

	result := s.Impact.Analyze(changes, sections, requirements, req.TopN)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"notice_id":        noticeID,
		"from_snapshot_id": diff.FromSnapshotID,
		"to_snapshot_id":   diff.ToSnapshotID,
		"analysis":         result,
	})
}

func (s *Server) handleListWatches(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}

	watches, err := s.Store.ListWatchesByOwner(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if watches == nil {
		watches = []models.WatchedListing{}
	}
	return c.JSON(http.StatusOK, watches)
}

type addWatchRequest struct {
	NoticeID string `json:"notice_id"`
	Keyword  string `json:"keyword"`
}

func (s *Server) handleAddWatch(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}

	var req addWatchRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.NoticeID) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "notice_id is required"})
	}

	watch, err := s.Store.AddWatch(c.Request().Context(), userID, strings.TrimSpace(req.NoticeID), req.Keyword)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, watch)
}

func (s *Server) handleRemoveWatch(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}

	err = s.Store.RemoveWatch(c.Request().Context(), userID, c.Param("noticeID"))
	if errors.Is(err, db.ErrListingNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "watch not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

type scanRequest struct {
	OwnerID  string `json:"owner_id"`
	NoticeID string `json:"notice_id"`
	Keyword  string `json:"keyword"`
}

// handleTriggerScan runs an immediate scan: one listing when notice_id
// is given, otherwise a full cycle over the watch list.
func (s *Server) handleTriggerScan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	ctx := c.Request().Context()
	if req.NoticeID != "" {
		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "owner_id is required for a single-listing scan"})
		}
		result, err := s.Worker.ScanListing(ctx, ownerID, req.NoticeID, req.Keyword)
		if err != nil {
			if errors.Is(err, db.ErrListingNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "listing not found in feed"})
			}
			return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	}

	scanned, changed, failed := s.Worker.ScanAll(ctx)
	return c.JSON(http.StatusOK, map[string]int{
		"scanned": scanned,
		"changed": changed,
		"failed":  failed,
	})
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") && authHeader[7:] == secret {
			return next(c)
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		adminSecretRuntime = os.Getenv("ADMIN_SECRET")
		if adminSecretRuntime == "" {
			adminSecretErr = errors.New("ADMIN_SECRET is not set")
		}
	})
	return adminSecretRuntime, adminSecretErr
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Server) Start(port string) error {
	if _, err := strconv.Atoi(port); err != nil {
		return errors.New("invalid port: " + port)
	}
	return s.Echo.Start(":" + port)
}
