package id

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{RequestPrefix, RemotePrefix, ConnPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", prefix, id)
		}
		if !HasPrefix(id, prefix) {
			t.Errorf("HasPrefix(%s, %s) should be true", id, prefix)
		}
	}
}

func TestHasPrefix(t *testing.T) {
	remoteID := string(NewRemoteID())

	if HasPrefix(remoteID, RequestPrefix) {
		t.Errorf("remote id should not match request prefix: %s", remoteID)
	}
	if HasPrefix("remote_notaulid", RemotePrefix) {
		t.Error("malformed ULID part should be rejected")
	}
	if HasPrefix("", RemotePrefix) {
		t.Error("empty id should be rejected")
	}
}

func TestTypedIDGeneration(t *testing.T) {
	ids := map[string]string{
		RequestPrefix: NewRequestID().String(),
		RemotePrefix:  NewRemoteID().String(),
		ConnPrefix:    NewConnID().String(),
	}

	for prefix, id := range ids {
		parts := strings.Split(id, "_")
		if len(parts) != 2 {
			t.Errorf("ID should have format 'prefix_ulid', got: %s", id)
			continue
		}
		if parts[0] != prefix {
			t.Errorf("Expected prefix '%s', got '%s' in ID: %s", prefix, parts[0], id)
		}
		if len(parts[1]) != 26 {
			t.Errorf("ULID should be 26 characters, got %d in ID: %s", len(parts[1]), id)
		}
	}
}

func TestIsValid(t *testing.T) {
	gen := NewGenerator()

	if !IsValid(gen.GenerateString()) {
		t.Error("Generated ULID should be valid")
	}

	for _, id := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestIsUUID(t *testing.T) {
	if !IsUUID(NewUUID()) {
		t.Error("NewUUID should produce a valid UUID")
	}
	if !IsUUID("c1a0a2f6-3b0e-4c55-9a5e-0c3f6c1b2d4e") {
		t.Error("literal UUID should be valid")
	}

	for _, s := range []string{"", "not-a-uuid", "c1a0a2f6-3b0e-4c55-9a5e"} {
		if IsUUID(s) {
			t.Errorf("%q should not be a UUID", s)
		}
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.GenerateString()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID found in concurrent generation: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != goroutines*idsPerGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	gen := NewGenerator()

	prev := gen.GenerateString()
	for i := 0; i < 1000; i++ {
		next := gen.GenerateString()
		if next <= prev {
			t.Fatalf("IDs should be strictly increasing: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestDefaultGenerator(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return the same instance")
	}
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(RequestPrefix)
	}
}
