package postgres

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcberr"
	"github.com/dcbkit/eventstore/internal/dcbstore"
)

func drain(ch <-chan dcbstore.QueryResult) ([]dcbcore.StoredEvent, error) {
	var out []dcbcore.StoredEvent
	for r := range ch {
		if r.Err != nil {
			return out, r.Err
		}
		out = append(out, r.Event)
	}
	return out, nil
}

var _ = Describe("Append and Query", func() {
	BeforeEach(func() {
		Expect(truncateEventsTable(ctx, pool)).To(Succeed())
	})

	It("appends unconditionally and reads the event back by stream", func() {
		stream := dcbcore.NewEventStreamId("course-101", "enrollment")
		ev := dcbcore.NewEvent{
			Stream:        stream,
			Type:          "CourseCreated",
			ImmutableData: []byte(`{"capacity":30}`),
			Tags:          dcbcore.NewTags(dcbcore.NewTag("course", "101")),
		}

		stored, err := engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{ev})
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(1))
		Expect(stored[0].Reference.Position).To(Equal(uint64(1)))

		ch, err := engine.Query(ctx, dcbcore.MatchAll(), &stream, nil, dcbcore.NoLimit(), dcbcore.Forward)
		Expect(err).NotTo(HaveOccurred())
		got, err := drain(ch)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Type).To(Equal(dcbcore.EventType("CourseCreated")))
	})

	It("assigns strictly increasing positions across a batch", func() {
		stream := dcbcore.NewEventStreamId("course-102", "enrollment")
		events := []dcbcore.NewEvent{
			{Stream: stream, Type: "A", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
			{Stream: stream, Type: "B", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
			{Stream: stream, Type: "C", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
		}

		stored, err := engine.Append(ctx, dcbcore.NoCriteria(), events)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored[0].Reference.Position).To(BeNumerically("<", stored[1].Reference.Position))
		Expect(stored[1].Reference.Position).To(BeNumerically("<", stored[2].Reference.Position))
	})

	It("rejects a conflicting append whose expected last reference is stale", func() {
		stream := dcbcore.NewEventStreamId("course-103", "enrollment")
		tags := dcbcore.NewTags(dcbcore.NewTag("course", "103"))
		query := dcbcore.ForEvents(dcbcore.NewEventTypesFilter("CourseCreated"), tags)

		first, err := engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{
			{Stream: stream, Type: "CourseCreated", ImmutableData: []byte(`{}`), Tags: tags},
		})
		Expect(err).NotTo(HaveOccurred())

		staleCriteria := dcbcore.NewAppendCriteria(query, dcbcore.NoReference())
		_, err = engine.Append(ctx, staleCriteria, []dcbcore.NewEvent{
			{Stream: stream, Type: "CourseCreated", ImmutableData: []byte(`{}`), Tags: tags},
		})
		Expect(err).To(HaveOccurred())

		concErr, ok := dcberr.AsConcurrencyError(err)
		Expect(ok).To(BeTrue())
		Expect(concErr.Actual).NotTo(BeNil())
		Expect(concErr.Actual.Position).To(Equal(first[0].Reference.Position))
	})

	It("accepts an append whose expected last reference matches the log", func() {
		stream := dcbcore.NewEventStreamId("course-104", "enrollment")
		tags := dcbcore.NewTags(dcbcore.NewTag("course", "104"))
		query := dcbcore.ForEvents(dcbcore.NewEventTypesFilter("CourseCreated"), tags)

		first, err := engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{
			{Stream: stream, Type: "CourseCreated", ImmutableData: []byte(`{}`), Tags: tags},
		})
		Expect(err).NotTo(HaveOccurred())

		criteria := dcbcore.NewAppendCriteria(query, &first[0].Reference)
		_, err = engine.Append(ctx, criteria, []dcbcore.NewEvent{
			{Stream: stream, Type: "StudentEnrolled", ImmutableData: []byte(`{}`), Tags: tags},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("filters by tag containment", func() {
		streamA := dcbcore.NewEventStreamId("course-105", "enrollment")
		streamB := dcbcore.NewEventStreamId("course-106", "enrollment")
		_, err := engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{
			{Stream: streamA, Type: "CourseCreated", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags(dcbcore.NewTag("course", "105"))},
			{Stream: streamB, Type: "CourseCreated", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags(dcbcore.NewTag("course", "106"))},
		})
		Expect(err).NotTo(HaveOccurred())

		query := dcbcore.ForEvents(dcbcore.NewEventTypesFilter("CourseCreated"), dcbcore.NewTags(dcbcore.NewTag("course", "105")))
		ch, err := engine.Query(ctx, query, nil, nil, dcbcore.NoLimit(), dcbcore.Forward)
		Expect(err).NotTo(HaveOccurred())
		got, err := drain(ch)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Stream.Equal(streamA)).To(BeTrue())
	})

	It("scopes reads to the requested stream, excluding unrelated streams", func() {
		streamA := dcbcore.NewEventStreamId("course-107", "enrollment")
		streamB := dcbcore.NewEventStreamId("course-108", "enrollment")
		_, err := engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{
			{Stream: streamA, Type: "Tick", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
			{Stream: streamB, Type: "Tick", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
		})
		Expect(err).NotTo(HaveOccurred())

		ch, err := engine.Query(ctx, dcbcore.MatchAll(), &streamA, nil, dcbcore.NoLimit(), dcbcore.Forward)
		Expect(err).NotTo(HaveOccurred())
		got, err := drain(ch)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].Stream.Equal(streamA)).To(BeTrue())
	})

	It("scopes reads to a context-only (wildcard-purpose) stream, still excluding other contexts", func() {
		grading := dcbcore.NewEventStreamId("course-111", "grading")
		enrollment := dcbcore.NewEventStreamId("course-111", "enrollment")
		other := dcbcore.NewEventStreamId("course-112", "enrollment")
		_, err := engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{
			{Stream: grading, Type: "Tick", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
			{Stream: enrollment, Type: "Tick", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
			{Stream: other, Type: "Tick", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
		})
		Expect(err).NotTo(HaveOccurred())

		contextOnly := dcbcore.NewEventStreamIdContextOnly("course-111")
		ch, err := engine.Query(ctx, dcbcore.MatchAll(), &contextOnly, nil, dcbcore.NoLimit(), dcbcore.Forward)
		Expect(err).NotTo(HaveOccurred())
		got, err := drain(ch)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		for _, ev := range got {
			evCtx, _ := ev.Stream.Context()
			Expect(evCtx).To(Equal("course-111"))
		}
	})

	It("enforces the query result hard cap with TooManyEventsError", func() {
		cfg := dcbstore.DefaultConfig()
		cfg.MaxQueryResults = 2
		cfg.AdvisoryLockNamespace = "dcbkit-cap-test"
		capped, err := New(context.Background(), pool, cfg)
		Expect(err).NotTo(HaveOccurred())
		defer capped.Close()

		stream := dcbcore.NewEventStreamId("course-109", "enrollment")
		events := make([]dcbcore.NewEvent, 3)
		for i := range events {
			events[i] = dcbcore.NewEvent{Stream: stream, Type: "Tick", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()}
		}
		_, err = engine.Append(ctx, dcbcore.NoCriteria(), events)
		Expect(err).NotTo(HaveOccurred())

		ch, err := capped.Query(ctx, dcbcore.MatchAll(), &stream, nil, dcbcore.NoLimit(), dcbcore.Forward)
		Expect(err).NotTo(HaveOccurred())
		_, err = drain(ch)
		Expect(err).To(HaveOccurred())
		Expect(dcberr.IsTooManyEventsError(err)).To(BeTrue())
	})
})

var _ = Describe("Bookmarks", func() {
	BeforeEach(func() {
		Expect(truncateEventsTable(ctx, pool)).To(Succeed())
	})

	It("returns nil for a reader with no recorded bookmark", func() {
		bm, err := engine.GetBookmark(ctx, "reader-unseen")
		Expect(err).NotTo(HaveOccurred())
		Expect(bm).To(BeNil())
	})

	It("upserts and reads back a reader's bookmark", func() {
		stream := dcbcore.NewEventStreamId("course-110", "enrollment")
		stored, err := engine.Append(ctx, dcbcore.NoCriteria(), []dcbcore.NewEvent{
			{Stream: stream, Type: "Tick", ImmutableData: []byte(`{}`), Tags: dcbcore.NewTags()},
		})
		Expect(err).NotTo(HaveOccurred())

		tags := dcbcore.NewTags(dcbcore.NewTag("reader", "projector-1"))
		_, err = engine.PlaceBookmark(ctx, "projector-1", stored[0].Reference, tags)
		Expect(err).NotTo(HaveOccurred())

		bm, err := engine.GetBookmark(ctx, "projector-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(bm).NotTo(BeNil())
		Expect(bm.Reference.Position).To(Equal(stored[0].Reference.Position))

		advanced := dcbcore.EventReference{ID: stored[0].Reference.ID, Position: stored[0].Reference.Position + 1}
		_, err = engine.PlaceBookmark(ctx, "projector-1", advanced, tags)
		Expect(err).NotTo(HaveOccurred())

		bm2, err := engine.GetBookmark(ctx, "projector-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(bm2.Reference.Position).To(Equal(advanced.Position))
	})
})
