package state

import "testing"

func TestNextState(t *testing.T) {
	cases := []struct {
		cur, evt string
		want     string
		wantErr  bool
	}{
		{StateOpen, EvtEnter, StateOpen, false},
		{StateOpen, EvtRequestSelection, StateAwaiting, false},
		{StateOpen, EvtFinalize, "", true},
		{StateOpen, EvtReset, "", true},
		{StateAwaiting, EvtEnter, StateAwaiting, false},
		{StateAwaiting, EvtRequestSelection, StateAwaiting, false},
		{StateAwaiting, EvtFinalize, StateComplete, false},
		{StateAwaiting, EvtReset, "", true},
		{StateComplete, EvtEnter, "", true},
		{StateComplete, EvtRequestSelection, "", true},
		{StateComplete, EvtFinalize, "", true},
		{StateComplete, EvtReset, StateOpen, false},
	}
	for _, c := range cases {
		got, err := NextState(c.cur, c.evt)
		if c.wantErr {
			if err == nil {
				t.Fatalf("%s --%s-->: expected error, got %s", c.cur, c.evt, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s --%s-->: %v", c.cur, c.evt, err)
		}
		if got != c.want {
			t.Fatalf("%s --%s--> %s, want %s", c.cur, c.evt, got, c.want)
		}
	}
}
