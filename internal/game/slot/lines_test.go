package slot

import (
	"testing"
)

// 3x3 盘面：十条固定线，每次调用都完全一致且两两不同
func TestPaylines3x3TenDistinct(t *testing.T) {
	first := GeneratePaylines(3, 3, 10)
	if len(first) != 10 {
		t.Fatalf("3x3 yields %d lines, want 10", len(first))
	}
	seen := map[string]int{}
	for i, l := range first {
		if len(l) != 3 {
			t.Fatalf("line %d has %d entries", i, len(l))
		}
		k := lineKey(l)
		if prev, dup := seen[k]; dup {
			t.Errorf("line %d duplicates line %d: %v", i, prev, l)
		}
		seen[k] = i
	}
	// 确定性：重复调用结果一致
	second := GeneratePaylines(3, 3, 10)
	for i := range first {
		if lineKey(first[i]) != lineKey(second[i]) {
			t.Errorf("line %d not deterministic: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestPaylinesGenericDistinct(t *testing.T) {
	cases := []struct {
		reels, rows, count int
	}{
		{5, 3, 10},
		{5, 3, 20},
		{5, 4, 25},
		{6, 4, 30},
		{4, 3, 15},
	}
	for _, tc := range cases {
		lines := GeneratePaylines(tc.reels, tc.rows, tc.count)
		seen := map[string]bool{}
		for _, l := range lines {
			if len(l) != tc.reels {
				t.Errorf("%dx%d: line length %d", tc.reels, tc.rows, len(l))
			}
			for _, r := range l {
				if r < 0 || r >= tc.rows {
					t.Errorf("%dx%d: row %d out of range", tc.reels, tc.rows, r)
				}
			}
			k := lineKey(l)
			if seen[k] {
				t.Errorf("%dx%d/%d: duplicate row-sequence %v", tc.reels, tc.rows, tc.count, l)
			}
			seen[k] = true
		}
		if len(lines) > tc.count {
			t.Errorf("%dx%d: got %d lines, requested %d", tc.reels, tc.rows, len(lines), tc.count)
		}
	}
}

// 生成顺序固定：横线优先
func TestPaylinesPriorityOrder(t *testing.T) {
	lines := GeneratePaylines(5, 3, 20)
	for r := 0; r < 3; r++ {
		for i, row := range lines[r] {
			if row != r {
				t.Fatalf("line %d reel %d = %d, want horizontal row %d", r, i, row, r)
			}
		}
	}
}

func TestPaylinesDegenerate(t *testing.T) {
	if got := GeneratePaylines(0, 3, 10); got != nil {
		t.Errorf("zero reels: %v", got)
	}
	if got := GeneratePaylines(5, 3, 0); got != nil {
		t.Errorf("zero count: %v", got)
	}
	// 1行盘面只有一条可行线
	lines := GeneratePaylines(5, 1, 10)
	if len(lines) != 1 {
		t.Errorf("5x1 yields %d lines, want 1", len(lines))
	}
}
