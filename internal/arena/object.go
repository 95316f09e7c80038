package arena

import (
	"encoding/json"
	"fmt"
)

// GameObject is the server mirror of one player's live match state. Only the
// fields the server reasons about are typed; everything else the client sends
// (position, facing, ...) rides along in Extra and is echoed back unchanged.
type GameObject struct {
	ID       int
	UserName string
	Colour   string
	Health   float64
	Bullets  []json.RawMessage
	Alive    bool
	Extra    map[string]json.RawMessage
}

var knownObjectKeys = map[string]bool{
	"id":       true,
	"userName": true,
	"colour":   true,
	"health":   true,
	"bullets":  true,
	"alive":    true,
}

func (o *GameObject) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields["id"]
	if !ok {
		return fmt.Errorf("game object: missing id")
	}

	// a client that omits "alive" is still playing
	obj := GameObject{Alive: true}
	if err := json.Unmarshal(raw, &obj.ID); err != nil {
		return fmt.Errorf("game object: id: %w", err)
	}
	if raw, ok := fields["userName"]; ok {
		if err := json.Unmarshal(raw, &obj.UserName); err != nil {
			return fmt.Errorf("game object: userName: %w", err)
		}
	}
	if raw, ok := fields["colour"]; ok {
		if err := json.Unmarshal(raw, &obj.Colour); err != nil {
			return fmt.Errorf("game object: colour: %w", err)
		}
	}
	if raw, ok := fields["health"]; ok {
		if err := json.Unmarshal(raw, &obj.Health); err != nil {
			return fmt.Errorf("game object: health: %w", err)
		}
	}
	if raw, ok := fields["bullets"]; ok {
		if err := json.Unmarshal(raw, &obj.Bullets); err != nil {
			return fmt.Errorf("game object: bullets: %w", err)
		}
	}
	if raw, ok := fields["alive"]; ok {
		if err := json.Unmarshal(raw, &obj.Alive); err != nil {
			return fmt.Errorf("game object: alive: %w", err)
		}
	}

	for k, v := range fields {
		if knownObjectKeys[k] {
			continue
		}
		if obj.Extra == nil {
			obj.Extra = make(map[string]json.RawMessage)
		}
		obj.Extra[k] = v
	}

	*o = obj
	return nil
}

func (o GameObject) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(o.Extra)+len(knownObjectKeys))
	for k, v := range o.Extra {
		out[k] = v
	}
	bullets := o.Bullets
	if bullets == nil {
		bullets = []json.RawMessage{}
	}
	out["id"] = o.ID
	out["userName"] = o.UserName
	out["colour"] = o.Colour
	out["health"] = o.Health
	out["bullets"] = bullets
	out["alive"] = o.Alive
	return json.Marshal(out)
}

// kill zeroes the object the way a quit or eviction does.
func (o *GameObject) kill() {
	o.Health = 0
	o.Bullets = []json.RawMessage{}
	o.Alive = false
}
