package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const testScript = `
function on_touch(ctx)
    local cmds = {}
    if ctx.trigger.archetype == "hurt_zone" then
        cmds[#cmds + 1] = { type = "remove_mover" }
    elseif ctx.trigger.archetype == "portal" then
        cmds[#cmds + 1] = { type = "teleport_mover", x = 100, y = 200, z = 0 }
        cmds[#cmds + 1] = { type = "log", message = "teleported " .. ctx.mover.id }
    end
    return cmds
end
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	trigDir := filepath.Join(dir, "triggers")
	if err := os.MkdirAll(trigDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(trigDir, "test.lua"), []byte(testScript), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestRunTouchCommands(t *testing.T) {
	e := newTestEngine(t)

	cmds := e.RunTouch(TouchContext{
		TriggerID:        1,
		TriggerArchetype: "hurt_zone",
		MoverID:          2,
		MoverArchetype:   "crate",
	})
	if len(cmds) != 1 || cmds[0].Type != "remove_mover" {
		t.Errorf("hurt_zone commands = %+v, want one remove_mover", cmds)
	}

	cmds = e.RunTouch(TouchContext{
		TriggerID:        1,
		TriggerArchetype: "portal",
		MoverID:          7,
		MoverArchetype:   "crate",
	})
	if len(cmds) != 2 {
		t.Fatalf("portal commands = %+v, want 2", cmds)
	}
	if cmds[0].Type != "teleport_mover" || cmds[0].X != 100 || cmds[0].Y != 200 {
		t.Errorf("teleport command = %+v", cmds[0])
	}
	if cmds[1].Type != "log" || cmds[1].Message != "teleported 7" {
		t.Errorf("log command = %+v", cmds[1])
	}
}

func TestRunTouchUnknownArchetype(t *testing.T) {
	e := newTestEngine(t)

	cmds := e.RunTouch(TouchContext{TriggerArchetype: "plain"})
	if len(cmds) != 0 {
		t.Errorf("commands = %+v, want none", cmds)
	}
}

func TestMissingScriptsDir(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine with missing dir: %v", err)
	}
	defer e.Close()

	// No on_touch defined: contacts yield no commands.
	if cmds := e.RunTouch(TouchContext{}); cmds != nil {
		t.Errorf("commands = %+v, want nil", cmds)
	}
}
