package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubdigest/internal/testutil"
)

func TestDedupKey_Equal(t *testing.T) {
	base := DedupKey{
		SourceID:  1,
		URL:       testutil.Ptr("https://example.com/a"),
		Number:    testutil.Ptr("12/2024"),
		Subject:   testutil.Ptr("Delibera"),
		DateStart: testutil.Ptr("2024-05-01"),
	}

	tests := []struct {
		name  string
		other func(k DedupKey) DedupKey
		equal bool
	}{
		{
			name:  "identical",
			other: func(k DedupKey) DedupKey { return k },
			equal: true,
		},
		{
			name: "same values in distinct pointers",
			other: func(k DedupKey) DedupKey {
				k.URL = testutil.Ptr("https://example.com/a")
				return k
			},
			equal: true,
		},
		{
			name: "absent vs value",
			other: func(k DedupKey) DedupKey {
				k.Publisher = testutil.Ptr("Comune")
				return k
			},
			equal: false,
		},
		{
			name: "value vs absent",
			other: func(k DedupKey) DedupKey {
				k.Number = nil
				return k
			},
			equal: false,
		},
		{
			name: "different value",
			other: func(k DedupKey) DedupKey {
				k.DateStart = testutil.Ptr("2024-05-02")
				return k
			},
			equal: false,
		},
		{
			name: "different source",
			other: func(k DedupKey) DedupKey {
				k.SourceID = 2
				return k
			},
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, base.Equal(tt.other(base)))
		})
	}
}

func TestDedupKey_AllAbsentAreEqual(t *testing.T) {
	assert.True(t, DedupKey{SourceID: 3}.Equal(DedupKey{SourceID: 3}))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize(testutil.Ptr("")))
	assert.Nil(t, Normalize(testutil.Ptr("  \t")))

	in := testutil.Ptr(" kept as is ")
	out := Normalize(in)
	require.NotNil(t, out)
	assert.Equal(t, " kept as is ", *out)
	assert.NotSame(t, in, out)
}

func TestRawRecord_Validate(t *testing.T) {
	ok := RawRecord{Attachments: []RawAttachment{{Name: testutil.Ptr("a.pdf"), URL: testutil.Ptr("https://x/a.pdf")}}}
	assert.NoError(t, ok.Validate())

	noName := RawRecord{Attachments: []RawAttachment{{URL: testutil.Ptr("https://x/a.pdf")}}}
	assert.ErrorIs(t, noName.Validate(), ErrIngestionParse)

	blankURL := RawRecord{Attachments: []RawAttachment{{Name: testutil.Ptr("a.pdf"), URL: testutil.Ptr(" ")}}}
	assert.ErrorIs(t, blankURL.Validate(), ErrIngestionParse)
}

func TestRawRecord_Publication(t *testing.T) {
	rec := RawRecord{
		URL:     testutil.Ptr("https://example.com/1"),
		Number:  testutil.Ptr(""),
		Subject: testutil.Ptr("Bando"),
		Attachments: []RawAttachment{
			{Name: testutil.Ptr("first.pdf"), URL: testutil.Ptr("https://example.com/first.pdf")},
			{Name: testutil.Ptr("second.pdf"), URL: testutil.Ptr("https://example.com/second.pdf")},
		},
	}

	pub := rec.Publication(7)

	assert.Equal(t, int64(7), pub.SourceID)
	assert.Equal(t, "https://example.com/1", *pub.URL)
	assert.Nil(t, pub.Number)
	assert.Nil(t, pub.Publisher)
	require.Len(t, pub.Attachments, 2)
	assert.Equal(t, "first.pdf", pub.Attachments[0].Name)
	assert.Equal(t, "second.pdf", pub.Attachments[1].Name)
}

func TestMaxID(t *testing.T) {
	assert.Equal(t, int64(0), MaxID(nil))
	assert.Equal(t, int64(9), MaxID([]Publication{{ID: 3}, {ID: 9}, {ID: 5}}))
}

func TestShouldAdvance(t *testing.T) {
	okOutcome := DeliveryOutcome{Recipient: Subscriber{Email: "a@example.com"}}
	failed := DeliveryOutcome{Recipient: Subscriber{Email: "b@example.com"}, Err: errors.New("timeout")}

	assert.False(t, ShouldAdvance(nil))
	assert.True(t, ShouldAdvance([]DeliveryOutcome{okOutcome}))
	assert.True(t, ShouldAdvance([]DeliveryOutcome{okOutcome, okOutcome}))
	assert.False(t, ShouldAdvance([]DeliveryOutcome{okOutcome, failed}))
	assert.False(t, ShouldAdvance([]DeliveryOutcome{failed}))
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("connection refused")
	outcomes := []DeliveryOutcome{
		{Recipient: Subscriber{Email: "a@example.com"}},
		{Recipient: Subscriber{Email: "b@example.com"}, Err: cause},
	}

	err := NewDeliveryError(4, outcomes)

	assert.Len(t, err.Failures, 1)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "1 of 2 subscribers")
	assert.Contains(t, err.Error(), "b@example.com")
}
