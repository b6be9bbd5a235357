package basemap

import (
	"context"
	"errors"
	"testing"

	"github.com/joeblew999/plat-overlay/internal/mapstate"
)

func TestSourcesControlVisibility(t *testing.T) {
	f := newFixture(t)
	f.addOverlay(t, "dh-a")
	c := NewSourcesControl(f.m, f.p.IsCustom)

	got := c.Sources()
	if len(got) != 1 || got[0].ID != "dh-a" || got[0].Layers != 2 || !got[0].Visible {
		t.Fatalf("sources = %+v", got)
	}

	if err := c.SetVisible("dh-a", false); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"dh-a-fill", "dh-a-line"} {
		l, _ := f.m.Layer(id)
		if l.Layout["visibility"] != "none" {
			t.Errorf("%s visibility = %v, want none", id, l.Layout["visibility"])
		}
	}
	if c.Sources()[0].Visible {
		t.Error("source should report hidden")
	}

	// Hidden overlays stay hidden across a style swap.
	if err := f.p.Switch(context.Background(), "dark"); err != nil {
		t.Fatal(err)
	}
	f.waitRestored(t)
	if l, _ := f.m.Layer("dh-a-fill"); l.Layout["visibility"] != "none" {
		t.Errorf("visibility after swap = %v", l.Layout["visibility"])
	}

	if err := c.SetVisible("dh-a", true); err != nil {
		t.Fatal(err)
	}
	if !c.Sources()[0].Visible {
		t.Error("source should report visible")
	}
}

func TestSourcesControlUnknownSource(t *testing.T) {
	f := newFixture(t)
	c := NewSourcesControl(f.m, nil)
	if err := c.SetVisible("nope", false); !errors.Is(err, mapstate.ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
	if n := len(c.Sources()); n != 1 {
		t.Errorf("unfiltered sources = %d, want the basemap source", n)
	}
}
