package crypto

import "testing"

func TestCombinedSequenceNextStrictlyIncreases(t *testing.T) {
	csn, err := NewCombinedSequence()
	if err != nil {
		t.Fatalf("NewCombinedSequence() error = %v", err)
	}

	first, err := csn.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	second, err := csn.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	if !first.Less(second) {
		t.Errorf("first %+v is not less than second %+v", first, second)
	}
}

func TestCombinedSequenceSequenceOverflow(t *testing.T) {
	csn := CombinedSequence{overflow: 0, sequence: 0xffffffff, started: true}

	next, err := csn.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	overflow, sequence := next.Split()
	if overflow != 1 || sequence != 0 {
		t.Errorf("Next() after sequence wrap = (overflow=%d, sequence=%d), want (1, 0)", overflow, sequence)
	}
}

func TestCombinedSequenceExhausted(t *testing.T) {
	csn := CombinedSequence{overflow: 0xffff, sequence: 0xffffffff, started: true}

	if _, err := csn.Next(); err != ErrSequenceExhausted {
		t.Errorf("Next() at exhaustion boundary error = %v, want %v", err, ErrSequenceExhausted)
	}
}

func TestIncomingTrackerRejectsReplay(t *testing.T) {
	var tr IncomingTracker
	csn := CombinedSequence{overflow: 0, sequence: 5, started: true}

	if err := tr.Validate(csn); err != nil {
		t.Fatalf("Validate() first packet error = %v", err)
	}

	if err := tr.Validate(csn); err == nil {
		t.Error("Validate() replayed CSN: want error, got nil")
	}

	older := CombinedSequence{overflow: 0, sequence: 4, started: true}
	if err := tr.Validate(older); err == nil {
		t.Error("Validate() regressed CSN: want error, got nil")
	}

	newer := CombinedSequence{overflow: 0, sequence: 6, started: true}
	if err := tr.Validate(newer); err != nil {
		t.Errorf("Validate() strictly-increasing CSN error = %v, want nil", err)
	}
}
