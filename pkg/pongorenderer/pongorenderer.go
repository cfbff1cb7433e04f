// Package pongorenderer adapts a pongo2 template set to echo's Renderer
// interface.
package pongorenderer

import (
	"io"

	"github.com/flosch/pongo2/v6"
	"github.com/labstack/echo/v4"
)

type Renderer struct {
	set *pongo2.TemplateSet
}

func NewRenderer(set *pongo2.TemplateSet) *Renderer {
	return &Renderer{set: set}
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, err := r.set.FromCache(name)
	if err != nil {
		return err
	}

	ctx, ok := data.(pongo2.Context)
	if !ok {
		ctx = pongo2.Context{}
	}

	return tmpl.ExecuteWriter(ctx, w)
}
