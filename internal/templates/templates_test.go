package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholders(t *testing.T) {
	got := Placeholders("Hi {$name}, {$event} starts at {$time}. See you {$name}!")
	assert.Equal(t, []string{"name", "event", "time"}, got)
	assert.Empty(t, Placeholders("no placeholders here {name} $name"))
}

func TestRenderPositional(t *testing.T) {
	body := "Hi {$name}, welcome to {$church}. God bless you {$name}."

	assert.Equal(t, "Hi Ama, welcome to Bethel. God bless you Ama.",
		RenderPositional(body, []string{"Ama", "Bethel"}))

	assert.Equal(t, "Hi Ama, welcome to {$church}. God bless you Ama.",
		RenderPositional(body, []string{"Ama"}))

	assert.Equal(t, body, RenderPositional(body, nil))
}

func TestRender(t *testing.T) {
	got := Render("Dear {$name}, {$unknown}", map[string]string{"name": "Kofi"})
	assert.Equal(t, "Dear Kofi, {$unknown}", got)
}

func TestRenderName(t *testing.T) {
	assert.Equal(t, "Hi Kwame, happy birthday", RenderName("Hi {$name}, happy birthday", "Kwame", "Beloved"))
	assert.Equal(t, "Hi Beloved, happy birthday", RenderName("Hi {$name}, happy birthday", "  ", "Beloved"))
}
