package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/girowatch/girowatch/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

type recordingDispatcher struct {
	pairs []models.Pair
	err   error
	// pendingDuring captures the pairer slots as seen from inside Dispatch
	pairer        *Pairer
	pendingDuring [][2]string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, pair models.Pair) (string, error) {
	d.pairs = append(d.pairs, pair)
	if d.pairer != nil {
		xml, pdf := d.pairer.Pending()
		d.pendingDuring = append(d.pendingDuring, [2]string{xml, pdf})
	}
	if d.err != nil {
		return "", d.err
	}
	return "/out/" + pair.PDFPath, nil
}

func newTestPairer(t *testing.T, d *recordingDispatcher) *Pairer {
	p := New(d, zerolog.New(zerolog.NewTestWriter(t)))
	d.pairer = p
	return p
}

func ev(path string) models.WatchEvent {
	return models.WatchEvent{ID: path, Path: path}
}

func TestClassify(t *testing.T) {
	kind, err := Classify("/in/invoice.xml")
	require.NoError(t, err)
	assert.Equal(t, models.KindXML, kind)

	kind, err = Classify("/in/invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.KindPDF, kind)

	for _, path := range []string{"/in/invoice.txt", "/in/invoice.PDF", "/in/invoice"} {
		_, err := Classify(path)
		assert.True(t, errors.Is(err, ErrUnexpectedKind), path)
		assert.True(t, errors.Is(err, ErrProtocolViolation), path)
	}
}

func TestPairingIsCommutative(t *testing.T) {
	ctx := context.Background()

	xmlFirst := &recordingDispatcher{}
	p := newTestPairer(t, xmlFirst)
	require.NoError(t, p.Handle(ctx, ev("invoice.xml")))
	require.NoError(t, p.Handle(ctx, ev("invoice.pdf")))

	pdfFirst := &recordingDispatcher{}
	p = newTestPairer(t, pdfFirst)
	require.NoError(t, p.Handle(ctx, ev("invoice.pdf")))
	require.NoError(t, p.Handle(ctx, ev("invoice.xml")))

	require.Len(t, xmlFirst.pairs, 1)
	require.Len(t, pdfFirst.pairs, 1)
	assert.Equal(t, "invoice.xml", xmlFirst.pairs[0].XMLPath)
	assert.Equal(t, "invoice.pdf", xmlFirst.pairs[0].PDFPath)
	assert.Equal(t, xmlFirst.pairs[0].XMLPath, pdfFirst.pairs[0].XMLPath)
	assert.Equal(t, xmlFirst.pairs[0].PDFPath, pdfFirst.pairs[0].PDFPath)
}

func TestDispatchOnceThenSlotsEmpty(t *testing.T) {
	d := &recordingDispatcher{}
	p := newTestPairer(t, d)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, ev("a.xml")))
	assert.Empty(t, d.pairs)
	xml, pdf := p.Pending()
	assert.Equal(t, "a.xml", xml)
	assert.Empty(t, pdf)

	require.NoError(t, p.Handle(ctx, ev("a.pdf")))
	require.Len(t, d.pairs, 1)
	assert.NotEmpty(t, d.pairs[0].ID)
	assert.Equal(t, [2]string{"a.xml", "a.pdf"}, d.pendingDuring[0])

	xml, pdf = p.Pending()
	assert.Empty(t, xml)
	assert.Empty(t, pdf)
}

func TestSlotsResetAfterFailedDispatch(t *testing.T) {
	transformErr := errors.New("placeholder image missing")
	d := &recordingDispatcher{err: transformErr}
	p := newTestPairer(t, d)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, ev("a.pdf")))
	err := p.Handle(ctx, ev("a.xml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, transformErr))
	assert.False(t, errors.Is(err, ErrProtocolViolation))

	xml, pdf := p.Pending()
	assert.Empty(t, xml)
	assert.Empty(t, pdf)
	assert.Len(t, d.pairs, 1)
}

func TestSecondFileOfSameKindIsFatal(t *testing.T) {
	d := &recordingDispatcher{}
	p := newTestPairer(t, d)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, ev("first.xml")))
	err := p.Handle(ctx, ev("second.xml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSlotOccupied))
	assert.True(t, errors.Is(err, ErrProtocolViolation))
	assert.Empty(t, d.pairs)

	xml, _ := p.Pending()
	assert.Equal(t, "first.xml", xml)
}

func TestUnexpectedKindLeavesSlotsUntouched(t *testing.T) {
	d := &recordingDispatcher{}
	p := newTestPairer(t, d)

	require.NoError(t, p.Handle(context.Background(), ev("a.pdf")))
	err := p.Handle(context.Background(), ev("notes.txt"))
	assert.True(t, errors.Is(err, ErrUnexpectedKind))

	_, pdf := p.Pending()
	assert.Equal(t, "a.pdf", pdf)
	assert.Empty(t, d.pairs)
}

func TestReplayedPairDispatchesTwice(t *testing.T) {
	d := &recordingDispatcher{}
	p := newTestPairer(t, d)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Handle(ctx, ev("invoice.xml")))
		require.NoError(t, p.Handle(ctx, ev("invoice.pdf")))
	}

	require.Len(t, d.pairs, 2)
	assert.Equal(t, d.pairs[0].XMLPath, d.pairs[1].XMLPath)
	assert.NotEqual(t, d.pairs[0].ID, d.pairs[1].ID)
}

func TestCheckStaleWarnsOnceWithoutEvicting(t *testing.T) {
	d := &recordingDispatcher{}
	p := newTestPairer(t, d)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return start }

	require.NoError(t, p.Handle(context.Background(), ev("lonely.xml")))

	assert.Equal(t, 0, p.CheckStale(start.Add(time.Minute), 5*time.Minute))
	assert.Equal(t, 1, p.CheckStale(start.Add(6*time.Minute), 5*time.Minute))
	assert.Equal(t, 0, p.CheckStale(start.Add(time.Hour), 5*time.Minute))
	assert.Equal(t, 0, p.CheckStale(start.Add(time.Hour), 0))

	xml, _ := p.Pending()
	assert.Equal(t, "lonely.xml", xml)

	require.NoError(t, p.Handle(context.Background(), ev("lonely.pdf")))
	assert.Len(t, d.pairs, 1)
}
