package gateway

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evandepol/homewatch/types"
)

func TestBuildPrompt_IncludesScopeGuidance(t *testing.T) {
	prompt := buildPrompt(requestWith(lockChange()))

	assert.Contains(t, prompt, "Security:")
	assert.Contains(t, prompt, "Energy:")
	assert.NotContains(t, prompt, "Climate:")
	assert.Contains(t, prompt, `lock.front_door: "locked" -> "unlocked"`)
}

func TestBuildPrompt_UnknownScopePassesThrough(t *testing.T) {
	req := requestWith(lockChange())
	req.Scope = []string{"custom_scope"}

	prompt := buildPrompt(req)
	assert.Contains(t, prompt, "- custom_scope")
}

func TestBuildPrompt_CapsChangeCount(t *testing.T) {
	var changes []types.StateChange
	for i := 0; i < maxPromptChanges+5; i++ {
		changes = append(changes, types.StateChange{
			EntityID:  fmt.Sprintf("sensor.s%d", i),
			OldState:  "a",
			NewState:  "b",
			ChangedAt: time.Now(),
		})
	}

	prompt := buildPrompt(requestWith(changes...))

	// Only the newest changes survive the cap.
	assert.NotContains(t, prompt, "sensor.s0:")
	assert.Contains(t, prompt, "sensor.s14:")
	assert.Equal(t, maxPromptChanges, strings.Count(prompt, "\n- sensor."))
}
