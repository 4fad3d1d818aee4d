package scte35

import "testing"

func TestSummarize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		vector string
		want   Event
	}{
		{
			vector: "ProviderAdStart",
			want: Event{
				CommandType:        "time_signal",
				CommandTypeID:      TimeSignalType,
				PTS:                900000,
				HasPTS:             true,
				EventID:            1,
				SegmentationType:   "Provider Advertisement Start",
				SegmentationTypeID: SegmentationTypeProviderAdStart,
				Description:        "Provider Advertisement Start",
			},
		},
		{
			vector: "DistributorAdStart",
			want: Event{
				CommandType:        "time_signal",
				CommandTypeID:      TimeSignalType,
				PTS:                900000,
				HasPTS:             true,
				EventID:            2,
				SegmentationType:   (&SegmentationDescriptor{SegmentationTypeID: SegmentationTypeDistributorAdStart}).Name(),
				SegmentationTypeID: SegmentationTypeDistributorAdStart,
				Duration:           30,
				Description:        (&SegmentationDescriptor{SegmentationTypeID: SegmentationTypeDistributorAdStart}).Name(),
			},
		},
		{
			vector: "SpliceInsertOut",
			want: Event{
				CommandType:        "splice_insert",
				CommandTypeID:      SpliceInsertType,
				EventID:            5,
				SegmentationType:   (&SegmentationDescriptor{SegmentationTypeID: SegmentationTypeBreakStart}).Name(),
				SegmentationTypeID: SegmentationTypeBreakStart,
				Duration:           90,
				OutOfNetwork:       true,
				Immediate:          true,
				Description:        (&SegmentationDescriptor{SegmentationTypeID: SegmentationTypeBreakStart}).Name(),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.vector, func(t *testing.T) {
			t.Parallel()
			sis, err := Decode(mustHex(t, goldenVectors[tt.vector]))
			if err != nil {
				t.Fatal(err)
			}
			if got := Summarize(sis); got != tt.want {
				t.Errorf("got  %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestSummarizeCommandsWithoutDescriptors(t *testing.T) {
	t.Parallel()

	pts := uint64(100)
	tests := []struct {
		name string
		sis  SpliceInfoSection
		want string
	}{
		{"null", SpliceInfoSection{SpliceCommandType: SpliceNullType, SpliceCommand: &SpliceNull{}}, "Heartbeat"},
		{"return", SpliceInfoSection{SpliceCommandType: SpliceInsertType, SpliceCommand: &SpliceInsert{SpliceEventID: 9}}, "Splice In (Return to Program)"},
		{"cancel", SpliceInfoSection{SpliceCommandType: SpliceInsertType, SpliceCommand: &SpliceInsert{SpliceEventCancelIndicator: true}}, "Splice Cancelled"},
		{"encrypted", SpliceInfoSection{SpliceCommandType: TimeSignalType, EncryptedPacket: true}, "Encrypted"},
		{"time signal", SpliceInfoSection{SpliceCommandType: TimeSignalType, PTSAdjustment: 5, SpliceCommand: &TimeSignal{SpliceTime: SpliceTime{PTSTime: &pts}}}, "Time Signal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := Summarize(&tt.sis)
			if ev.Description != tt.want {
				t.Errorf("Description: got %q, want %q", ev.Description, tt.want)
			}
			if tt.name == "time signal" && (!ev.HasPTS || ev.PTS != 105) {
				t.Errorf("PTS: got %d (%v), want 105", ev.PTS, ev.HasPTS)
			}
		})
	}
}
