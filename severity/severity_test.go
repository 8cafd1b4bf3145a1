package severity

import (
	"testing"

	"go.viam.com/test"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		count   int
		level   string
		message string
	}{
		{0, LevelGreen, MsgLow},
		{1, LevelGreen, MsgLow},
		{5, LevelGreen, MsgLow},
		{6, LevelYellow, MsgModerate},
		{10, LevelYellow, MsgModerate},
		{15, LevelYellow, MsgModerate},
		{16, LevelRed, MsgCritical},
		{100, LevelRed, MsgCritical},
	}
	for _, c := range cases {
		level, message := Classify(c.count)
		test.That(t, level, test.ShouldEqual, c.level)
		test.That(t, message, test.ShouldEqual, c.message)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	for count := 0; count < 32; count++ {
		l1, m1 := Classify(count)
		l2, m2 := Classify(count)
		test.That(t, l1, test.ShouldEqual, l2)
		test.That(t, m1, test.ShouldEqual, m2)
	}
}
