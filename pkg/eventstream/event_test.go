package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/folio/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals DocumentIndexedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.DocumentIndexedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeDocumentIndexed,
			EventID:       "evt_123",
			EmittedAt:     now,
			SessionID:     "session-1",
			Filename:      "notes.txt",
			ChunksCount:   12,
			SkippedCount:  1,
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("session_id"))
		Expect(got).To(HaveKey("filename"))
		Expect(got).To(HaveKey("chunks_count"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeDocumentIndexed).To(Equal("folio.document.indexed"))
	})

	It("provides ErrNilDocumentEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilDocumentEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilDocumentEvent).To(MatchError("nil document event"))
	})
})
