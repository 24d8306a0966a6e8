package nexus

import "testing"

func TestCmd_RegistersExpectedSubcommands(t *testing.T) {
	want := map[string]bool{
		"create": false, "list": false, "get": false, "destroy": false,
		"children": false, "publish": false, "unpublish": false,
		"rebuild": false, "events": false,
	}

	for _, c := range Cmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("expected nexus command group to register %q", name)
		}
	}
}

func TestChildrenCmd_RegistersExpectedSubcommands(t *testing.T) {
	want := map[string]bool{"add": false, "remove": false, "offline": false, "online": false}

	for _, c := range childrenCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("expected children command group to register %q", name)
		}
	}
}
