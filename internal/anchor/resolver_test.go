package anchor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/verba/internal/models"
)

const (
	chromeUA  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	safariUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15"
)

type page struct {
	layer  *Node
	marker *Node
	spans  []*Node
	texts  []*Node
}

// buildDoc renders n pages with two spans each, markers at the end of every text layer.
func buildDoc(n int) (*Node, []page, ContainerMap) {
	root := NewElement("viewer")
	var pages []page
	var cm ContainerMap
	for i := 1; i <= n; i++ {
		layer := NewTextLayer(models.Size{Width: 612, Height: 792})
		marker := NewEndMarker()
		p := page{layer: layer, marker: marker}
		for _, s := range []string{"Hello world", "second line"} {
			txt := NewText(s)
			span := NewElement("span").Append(txt)
			layer.Append(span)
			p.spans = append(p.spans, span)
			p.texts = append(p.texts, txt)
		}
		layer.Append(marker)
		root.Append(NewElement("page").Append(layer))
		pages = append(pages, p)
		cm = append(cm, &Container{PageNumber: i, Node: layer, Marker: marker})
	}
	return root, pages, cm
}

func TestDetectCapabilities(t *testing.T) {
	ff := DetectCapabilities(firefoxUA)
	assert.Equal(t, EngineGecko, ff.Engine)
	assert.False(t, ff.RepositionMarker)

	ch := DetectCapabilities(chromeUA)
	assert.Equal(t, EngineBlink, ch.Engine)
	assert.True(t, ch.RepositionMarker)

	sf := DetectCapabilities(safariUA)
	assert.Equal(t, EngineWebKit, sf.Engine)
	assert.True(t, sf.RepositionMarker)

	assert.True(t, DetectCapabilities("").RepositionMarker)
}

func TestResolve_EmptySelection(t *testing.T) {
	_, pages, cm := buildDoc(2)
	cm[0].Active = true
	pages[0].layer.InsertBefore(pages[0].marker, pages[0].spans[0])

	r := NewResolver(DetectCapabilities(chromeUA))
	_, ok := r.Resolve(Selection{}, cm)
	require.False(t, ok)

	assert.False(t, cm[0].Active)
	assert.Same(t, pages[0].marker, pages[0].layer.Children()[2], "marker should be back at the end")
}

func TestResolve_SinglePage(t *testing.T) {
	_, pages, cm := buildDoc(2)
	r := NewResolver(DetectCapabilities(chromeUA))

	sel := Selection{Ranges: []Range{{
		Start: Boundary{pages[0].texts[0], 0},
		End:   Boundary{pages[0].texts[0], 5},
	}}}
	a, ok := r.Resolve(sel, cm)
	require.True(t, ok)

	assert.Equal(t, []int{1}, a.Pages)
	assert.False(t, a.Backward)
	assert.True(t, cm[0].Active)
	assert.False(t, cm[1].Active)

	// End is moving on the first event: marker goes right after the end span.
	assert.Same(t, pages[0].marker, pages[0].layer.Children()[1])
	assert.Equal(t, models.Size{Width: 612, Height: 792}, pages[0].marker.Size)

	assert.Equal(t, Position{PageNumber: 1, Path: []int{0, 0}, Offset: 0}, a.Start)
	assert.Equal(t, Position{PageNumber: 1, Path: []int{0, 0}, Offset: 5}, a.End)
}

func TestResolve_CrossPage(t *testing.T) {
	_, pages, cm := buildDoc(3)
	r := NewResolver(DetectCapabilities(chromeUA))

	sel := Selection{Ranges: []Range{{
		Start: Boundary{pages[0].texts[1], 3},
		End:   Boundary{pages[1].texts[0], 4},
	}}}
	a, ok := r.Resolve(sel, cm)
	require.True(t, ok)

	assert.Equal(t, []int{1, 2}, a.Pages)
	assert.True(t, cm[0].Active)
	assert.True(t, cm[1].Active)
	assert.False(t, cm[2].Active)
	assert.Same(t, pages[1].marker, pages[1].layer.Children()[1])
}

func TestResolve_ExtendFromStart(t *testing.T) {
	_, pages, cm := buildDoc(1)
	r := NewResolver(DetectCapabilities(chromeUA))

	first := Selection{Ranges: []Range{{
		Start: Boundary{pages[0].texts[1], 0},
		End:   Boundary{pages[0].texts[1], 3},
	}}}
	_, ok := r.Resolve(first, cm)
	require.True(t, ok)

	second := Selection{Ranges: []Range{{
		Start: Boundary{pages[0].texts[0], 2},
		End:   Boundary{pages[0].texts[1], 3},
	}}}
	a, ok := r.Resolve(second, cm)
	require.True(t, ok)

	assert.True(t, a.Backward)
	assert.Same(t, pages[0].marker, pages[0].layer.Children()[0], "marker sits before the start span")
	assert.Equal(t, Position{PageNumber: 1, Path: []int{0, 0}, Offset: 2}, a.Start)
}

func TestResolve_Idempotent(t *testing.T) {
	_, pages, cm := buildDoc(1)
	r := NewResolver(DetectCapabilities(chromeUA))
	sel := Selection{Ranges: []Range{{
		Start: Boundary{pages[0].texts[0], 1},
		End:   Boundary{pages[0].texts[0], 4},
	}}}

	a1, ok := r.Resolve(sel, cm)
	require.True(t, ok)
	layout := append([]*Node(nil), pages[0].layer.Children()...)

	a2, ok := r.Resolve(sel, cm)
	require.True(t, ok)
	assert.Equal(t, a1, a2)
	assert.Equal(t, layout, pages[0].layer.Children())
}

func TestResolve_FirefoxSkipsMarker(t *testing.T) {
	_, pages, cm := buildDoc(2)
	r := NewResolver(DetectCapabilities(firefoxUA))

	sel := Selection{Ranges: []Range{
		{Start: Boundary{pages[0].texts[0], 0}, End: Boundary{pages[0].texts[0], 5}},
		{Start: Boundary{pages[1].texts[1], 0}, End: Boundary{pages[1].texts[1], 6}},
	}}
	_, ok := r.Resolve(sel, cm)
	require.False(t, ok)

	assert.True(t, cm[0].Active)
	assert.True(t, cm[1].Active)
	assert.Same(t, pages[0].marker, pages[0].layer.Children()[2])
	assert.Equal(t, models.Size{}, pages[0].marker.Size)
}

func TestAnchor_LocateAfterClear(t *testing.T) {
	_, pages, cm := buildDoc(2)
	r := NewResolver(DetectCapabilities(chromeUA))
	sel := Selection{Ranges: []Range{{
		Start: Boundary{pages[0].texts[1], 2},
		End:   Boundary{pages[1].texts[0], 5},
	}}}
	a, ok := r.Resolve(sel, cm)
	require.True(t, ok)

	_, ok = r.Resolve(Selection{}, cm)
	require.False(t, ok)

	rng, ok := a.Locate(cm)
	require.True(t, ok)
	assert.Same(t, pages[0].texts[1], rng.Start.Node)
	assert.Equal(t, 2, rng.Start.Offset)
	assert.Same(t, pages[1].texts[0], rng.End.Node)
	assert.Equal(t, 5, rng.End.Offset)

	_, ok = Anchor{Start: Position{PageNumber: 9}}.Locate(cm)
	assert.False(t, ok)
}

func TestRangeCompare(t *testing.T) {
	_, pages, _ := buildDoc(1)
	a := Range{Start: Boundary{pages[0].texts[0], 0}, End: Boundary{pages[0].texts[0], 5}}
	b := Range{Start: Boundary{pages[0].texts[0], 0}, End: Boundary{pages[0].texts[1], 2}}

	assert.Equal(t, 0, a.Compare(StartToStart, b))
	assert.Equal(t, -1, a.Compare(EndToEnd, b))
	assert.Equal(t, 1, b.Compare(EndToEnd, a))
	assert.Equal(t, 1, a.Compare(StartToEnd, b))
	assert.Equal(t, -1, a.Compare(EndToStart, b))

	// Element boundary vs. text inside it.
	el := Boundary{pages[0].layer, 1}
	assert.Equal(t, 1, comparePoints(el, Boundary{pages[0].texts[0], 3}))
	assert.Equal(t, -1, comparePoints(el, Boundary{pages[0].texts[1], 0}))
}
