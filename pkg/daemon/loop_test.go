package daemon

import (
	"sync"
	"testing"
	"time"
)

func TestHistory_CompletedIn(t *testing.T) {
	now := time.Now()
	rec := func(ago time.Duration, result string) TxRecord {
		return TxRecord{FinishedAt: now.Add(-ago), Result: result}
	}

	type fields struct {
		MaxRecordCount int
		Records        []TxRecord
		mu             *sync.Mutex
	}
	type args struct {
		last time.Duration
	}
	tests := []struct {
		name   string
		fields fields
		args   args
		want   int
	}{
		{
			name: "test empty",
			fields: fields{
				MaxRecordCount: 10,
				mu:             &sync.Mutex{},
			},
			args: args{last: time.Hour},
			want: 0,
		},
		{
			name: "test window",
			fields: fields{
				MaxRecordCount: 10,
				Records: []TxRecord{
					rec(70*time.Minute, ResultCompleted),
					rec(50*time.Minute, ResultCompleted),
					rec(30*time.Minute, ResultCompleted),
					rec(10*time.Minute, ResultCompleted),
				},
				mu: &sync.Mutex{},
			},
			args: args{last: time.Hour},
			want: 3,
		},
		{
			name: "test aborted not counted",
			fields: fields{
				MaxRecordCount: 10,
				Records: []TxRecord{
					rec(30*time.Minute, ResultCompleted),
					rec(20*time.Minute, ResultAborted),
					rec(10*time.Minute, ResultCompleted),
				},
				mu: &sync.Mutex{},
			},
			args: args{last: time.Hour},
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &History{
				MaxRecordCount: tt.fields.MaxRecordCount,
				Records:        tt.fields.Records,
				mu:             tt.fields.mu,
			}
			if got := h.CompletedIn(tt.args.last, now); got != tt.want {
				t.Errorf("CompletedIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHistory_Evicts(t *testing.T) {
	h := NewHistory(2)
	h.Add(TxRecord{Callsign: "A"})
	h.Add(TxRecord{Callsign: "B"})
	h.Add(TxRecord{Callsign: "C"})

	got := h.Get()
	if len(got) != 2 || got[0].Callsign != "B" || got[1].Callsign != "C" {
		t.Fatalf("unexpected records %+v", got)
	}

	got[0].Callsign = "X"
	if h.Get()[0].Callsign != "B" {
		t.Fatalf("Get must return a copy")
	}
}
