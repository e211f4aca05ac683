package event

import "testing"

func TestBusDeliversNextTickInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e SceneChanged) { got = append(got, "scene") })
	Subscribe(b, func(e ObjectSpawned) { got = append(got, "spawn") })

	Emit(b, ObjectSpawned{NetID: 7})
	Emit(b, SceneChanged{Scene: 2})
	Emit(b, ObjectSpawned{NetID: 8})

	b.DispatchAll()
	if len(got) != 0 {
		t.Fatalf("delivered before swap: %v", got)
	}

	b.SwapBuffers()
	if b.Pending() != 0 {
		t.Fatalf("Pending after swap = %d", b.Pending())
	}
	b.DispatchAll()
	want := []string{"spawn", "scene", "spawn"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	got = nil
	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 0 {
		t.Fatalf("events delivered twice: %v", got)
	}
}

func TestEmitOnNilBus(t *testing.T) {
	var b *Bus
	Emit(b, SceneStable{Scene: 1})
}
