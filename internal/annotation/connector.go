package annotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/models"
)

type authoring struct {
	id  string
	typ models.ConnectorType
}

// StartConnector puts marker id in awaiting-target mode for a connector of
// type typ. Any other authoring session on the board is cancelled.
func (b *Board) StartConnector(id string, typ models.ConnectorType) error {
	if !typ.Valid() {
		return fmt.Errorf("connector type %q: %w", typ, apperr.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.markers[id]; !ok {
		return notFound(id)
	}
	b.authoring = &authoring{id: id, typ: typ}
	return nil
}

// Authoring reports the marker and connector type awaiting a target.
func (b *Board) Authoring() (string, models.ConnectorType, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.authoring == nil {
		return "", "", false
	}
	return b.authoring.id, b.authoring.typ, true
}

// CancelConnector returns to idle without attaching anything.
func (b *Board) CancelConnector() {
	b.mu.Lock()
	b.authoring = nil
	b.mu.Unlock()
}

// CompleteConnector attaches the drawn geometry to the marker awaiting a
// target and returns to idle. Arrows need a point and boxes a region; a box
// without a region takes the bounds of highlightID when it resolves.
func (b *Board) CompleteConnector(ctx context.Context, target models.Geometry, highlightID string) (models.Connector, error) {
	b.mu.Lock()
	session := b.authoring
	if session == nil {
		b.mu.Unlock()
		return models.Connector{}, fmt.Errorf("annotation: no connector awaiting a target: %w", apperr.ErrConflict)
	}
	c, a, err := b.attachLocked(session.id, session.typ, target, highlightID)
	if err == nil || errors.Is(err, apperr.ErrNotFound) {
		b.authoring = nil
	}
	b.mu.Unlock()
	if err != nil {
		return models.Connector{}, err
	}
	return c, b.persistConnector(ctx, a, c)
}

// Connect attaches a connector to marker id without an authoring session.
// It leaves any session in progress on the board alone.
func (b *Board) Connect(ctx context.Context, id string, typ models.ConnectorType, target models.Geometry, highlightID string) (models.Connector, error) {
	b.mu.Lock()
	c, a, err := b.attachLocked(id, typ, target, highlightID)
	b.mu.Unlock()
	if err != nil {
		return models.Connector{}, err
	}
	return c, b.persistConnector(ctx, a, c)
}

// attachLocked appends the connector to the marker. b.mu must be held.
func (b *Board) attachLocked(id string, typ models.ConnectorType, target models.Geometry, highlightID string) (models.Connector, models.Annotation, error) {
	m, ok := b.markers[id]
	if !ok {
		return models.Connector{}, models.Annotation{}, notFound(id)
	}
	c, err := b.prepareConnector(models.Connector{Type: typ, Target: target, HighlightID: highlightID})
	if err != nil {
		return models.Connector{}, models.Annotation{}, err
	}
	m.ann.Connectors = append(m.ann.Connectors, c)
	return c, m.view().Annotation, nil
}

// prepareConnector checks c and fills in its id and, for a box linked to a
// live highlight without a region, the highlight bounds.
func (b *Board) prepareConnector(c models.Connector) (models.Connector, error) {
	if !c.Type.Valid() {
		return models.Connector{}, fmt.Errorf("connector type %q: %w", c.Type, apperr.ErrInvalidInput)
	}
	if c.Type == models.ConnectorHighlightBox && c.Target.Rect == nil && c.HighlightID != "" && b.highlights != nil {
		if h, ok := b.highlights.Lookup(c.HighlightID); ok {
			r := models.Bounds(h.Rects)
			c.Target.Rect = &r
		}
	}
	if err := validTarget(c.Type, c.Target); err != nil {
		return models.Connector{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}

func (b *Board) persistConnector(ctx context.Context, a models.Annotation, c models.Connector) error {
	if err := b.store.AddConnector(ctx, a.ID, c); err != nil {
		b.persistFailed("connector", a.ID, err, "Não foi possível salvar o conector.")
		return fmt.Errorf("annotation: connector on %s: %w", a.ID, err)
	}
	a = b.touch(a.ID, a)
	b.metrics.AnnotationWrite("connector")
	b.publish(events.TopicAnnotationSaved, a)
	return nil
}

func validTarget(typ models.ConnectorType, g models.Geometry) error {
	switch typ {
	case models.ConnectorArrow:
		if g.Point == nil {
			return fmt.Errorf("arrow connector needs a target point: %w", apperr.ErrInvalidInput)
		}
	case models.ConnectorHighlightBox:
		if g.Rect == nil || g.Rect.Width <= 0 || g.Rect.Height <= 0 {
			return fmt.Errorf("box connector needs a target region: %w", apperr.ErrInvalidInput)
		}
	}
	return nil
}

// ResolveConnectorTarget returns the highlight a connector points at. A
// connector without a highlight, or whose highlight is gone, is inert.
func ResolveConnectorTarget(c models.Connector, reg highlight.Lookup) (models.Highlight, bool) {
	if c.HighlightID == "" {
		return models.Highlight{}, false
	}
	return reg.Lookup(c.HighlightID)
}

// InertConnectors returns the ids of connectors of a whose highlight no
// longer exists. Connectors never linked to a highlight are not listed.
func InertConnectors(a models.Annotation, reg highlight.Lookup) []string {
	var out []string
	for _, c := range a.Connectors {
		if c.HighlightID == "" {
			continue
		}
		if _, ok := reg.Lookup(c.HighlightID); !ok {
			out = append(out, c.ID)
		}
	}
	return out
}
