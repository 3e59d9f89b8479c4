package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/services"
	"github.com/lanefeed/lanefeed/pkg/models"
)

type FeedHandler struct {
	logger *logrus.Logger
	feed   services.FeedServiceInterface
}

func NewFeedHandler(logger *logrus.Logger, feed services.FeedServiceInterface) *FeedHandler {
	return &FeedHandler{
		logger: logger,
		feed:   feed,
	}
}

// Get serves one ranked feed page. Session context arrives as query
// parameters because the client flushes engagement in batches and the
// server-side state may lag what the user just did.
func (h *FeedHandler) Get(c *gin.Context) {
	q := &models.FeedQuery{
		Category:    c.Query("category"),
		SessionID:   c.Query("sessionId"),
		ExcludeIDs:  splitList(c.Query("excludeIds")),
		EngagedIDs:  splitList(c.Query("engagedIds")),
		EngagedCats: splitList(c.Query("engagedCats")),
		SkippedCats: splitList(c.Query("skippedCats")),
	}

	var ok bool
	if q.Limit, ok = intQuery(c, "limit"); !ok {
		return
	}
	if q.Offset, ok = intQuery(c, "offset"); !ok {
		return
	}
	if q.CardsShown, ok = intQuery(c, "cardsShown"); !ok {
		return
	}

	resp, err := h.feed.Feed(c.Request.Context(), currentUser(c), q)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// intQuery parses an optional non-negative integer parameter, writing
// the validation response itself when the value is malformed.
func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		validationError(c, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// splitList parses a comma-separated parameter, dropping empty items.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
