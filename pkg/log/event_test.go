package log

import "testing"

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirectionIn, "IN"},
		{DirectionOut, "OUT"},
		{Direction(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.dir.String()
		if got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestLayerString(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerTransport, "TRANSPORT"},
		{LayerChannel, "CHANNEL"},
		{LayerEngine, "ENGINE"},
		{Layer(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.layer.String()
		if got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", tt.layer, got, tt.want)
		}
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryChange, "CHANGE"},
		{CategoryBroadcast, "BROADCAST"},
		{CategoryPresence, "PRESENCE"},
		{CategoryState, "STATE"},
		{CategoryControl, "CONTROL"},
		{CategoryHealth, "HEALTH"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.cat.String()
		if got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestPresenceActionString(t *testing.T) {
	tests := []struct {
		action PresenceAction
		want   string
	}{
		{PresenceTrack, "TRACK"},
		{PresenceUntrack, "UNTRACK"},
		{PresenceSync, "SYNC"},
		{PresenceJoin, "JOIN"},
		{PresenceLeave, "LEAVE"},
		{PresenceAction(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.action.String()
		if got != tt.want {
			t.Errorf("PresenceAction(%d).String() = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestStateEntityString(t *testing.T) {
	tests := []struct {
		entity StateEntity
		want   string
	}{
		{StateEntityChannel, "CHANNEL"},
		{StateEntityConnection, "CONNECTION"},
		{StateEntitySubscription, "SUBSCRIPTION"},
		{StateEntity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.entity.String()
		if got != tt.want {
			t.Errorf("StateEntity(%d).String() = %q, want %q", tt.entity, got, tt.want)
		}
	}
}

func TestControlMsgTypeString(t *testing.T) {
	tests := []struct {
		ctrl ControlMsgType
		want string
	}{
		{ControlMsgPing, "PING"},
		{ControlMsgPong, "PONG"},
		{ControlMsgClose, "CLOSE"},
		{ControlMsgType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.ctrl.String()
		if got != tt.want {
			t.Errorf("ControlMsgType(%d).String() = %q, want %q", tt.ctrl, got, tt.want)
		}
	}
}

// Values are persisted in log files and must stay stable.
func TestCategoryValues(t *testing.T) {
	tests := []struct {
		cat  Category
		want uint8
	}{
		{CategoryChange, 0},
		{CategoryBroadcast, 1},
		{CategoryPresence, 2},
		{CategoryState, 3},
		{CategoryControl, 4},
		{CategoryHealth, 5},
		{CategoryError, 6},
	}

	for _, tt := range tests {
		if uint8(tt.cat) != tt.want {
			t.Errorf("%s = %d, want %d", tt.cat, uint8(tt.cat), tt.want)
		}
	}
}
