package bridge

import "testing"

func TestDenylist_Blocked(t *testing.T) {
	d := NewDenylist([]string{"*.rxml.pike", "vendor/legacy"})

	tests := []struct {
		filename string
		want     bool
	}{
		{"layout.rxml.pike", true},
		{"/srv/site/pages/start.rxml.pike", true},
		{"/srv/site/vendor/legacy/mod.pike", true},
		{"module.pike", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := d.Blocked(tt.filename); got != tt.want {
			t.Errorf("Blocked(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestDenylist_Empty(t *testing.T) {
	if !NewDenylist(nil).Empty() {
		t.Error("Empty() = false for nil patterns")
	}
	if NewDenylist(nil).Blocked("anything.pike") {
		t.Error("empty denylist blocked a file")
	}
}
