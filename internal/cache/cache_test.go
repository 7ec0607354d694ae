package cache

import (
	"testing"
	"time"
)

func TestDiskGetMissThenPutThenHit(t *testing.T) {
	d := newDisk(t.TempDir())

	_, ok, err := d.Get("public_roads", 3, 2, 5, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss before put")
	}

	if err := d.Put("public_roads", 3, 2, 5, []byte("tile-bytes"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, ok, err := d.Get("public_roads", 3, 2, 5, 0)
	if err != nil || !ok {
		t.Fatalf("expected hit after put, ok=%v err=%v", ok, err)
	}
	if string(data) != "tile-bytes" {
		t.Fatalf("got %q", data)
	}
}

func TestDiskExpiry(t *testing.T) {
	d := newDisk(t.TempDir())
	if err := d.Put("public_roads", 1, 1, 1, []byte("x"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, ok, err := d.Get("public_roads", 1, 1, 1, time.Nanosecond)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected expired entry to miss")
	}
	if exists, _ := d.Exists("public_roads", 1, 1, 1); exists {
		t.Fatal("expired entry should have been removed by Get")
	}
}

func TestDiskDeleteLayer(t *testing.T) {
	d := newDisk(t.TempDir())
	if err := d.Put("public_roads", 3, 2, 5, []byte("x"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := d.DeleteLayer("public_roads"); err != nil {
		t.Fatalf("DeleteLayer: %v", err)
	}
	if _, ok, _ := d.Get("public_roads", 3, 2, 5, 0); ok {
		t.Fatal("expected miss after DeleteLayer")
	}
}

func TestDiskDeleteLayerMissingIsNotError(t *testing.T) {
	d := newDisk(t.TempDir())
	if err := d.DeleteLayer("never-existed"); err != nil {
		t.Fatalf("deleting an absent layer dir should not error: %v", err)
	}
}

var _ Facade = (*Disk)(nil)
var _ Facade = (*Redis)(nil)
