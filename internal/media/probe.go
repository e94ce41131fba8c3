package media

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	mp4 "github.com/abema/go-mp4"
	"github.com/at-wat/ebml-go"
	"golang.org/x/image/riff"
)

// ErrUnsupportedContainer is returned by a VideoProber that cannot read the
// attachment's container format.
var ErrUnsupportedContainer = errors.New("media: unsupported video container")

// ContainerProber dispatches on the attachment's MIME type to the prober
// of its container. A nil entry falls back to the built-in prober.
type ContainerProber struct {
	MP4  VideoProber
	WebM VideoProber
	AVI  VideoProber
}

func (p ContainerProber) ProbeVideo(ctx context.Context, a Attachment) (Dimensions, error) {
	var next VideoProber
	switch ct := baseType(a.ContentType()); ct {
	case "video/mp4":
		next = orDefault(p.MP4, MP4Prober{})
	case "video/webm":
		next = orDefault(p.WebM, WebMProber{})
	case "video/avi":
		next = orDefault(p.AVI, AVIProber{})
	default:
		return Dimensions{}, fmt.Errorf("%w: %s", ErrUnsupportedContainer, ct)
	}
	return next.ProbeVideo(ctx, a)
}

func orDefault(p, fallback VideoProber) VideoProber {
	if p == nil {
		return fallback
	}
	return p
}

// openForProbe checks ctx and opens the attachment content.
func openForProbe(ctx context.Context, a Attachment) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := a.Open()
	if err != nil {
		return nil, fmt.Errorf("media: open %s: %w", a.Name(), err)
	}
	return r, nil
}

// MP4Prober reads frame dimensions from an MP4 container: the first AVC
// track's decoder config, else the first track header with a non-zero size
// (HEVC, AV1 and other codecs).
type MP4Prober struct{}

func (MP4Prober) ProbeVideo(ctx context.Context, a Attachment) (Dimensions, error) {
	r, err := openForProbe(ctx, a)
	if err != nil {
		return Dimensions{}, err
	}
	defer r.Close()

	info, probeErr := mp4.Probe(r)
	if probeErr == nil {
		for _, tr := range info.Tracks {
			if tr.AVC != nil && tr.AVC.Width > 0 && tr.AVC.Height > 0 {
				return Dimensions{Width: int(tr.AVC.Width), Height: int(tr.AVC.Height)}, nil
			}
		}
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Dimensions{}, fmt.Errorf("media: rewind %s: %w", a.Name(), err)
	}
	boxes, err := mp4.ExtractBoxWithPayload(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeTkhd()})
	if err != nil {
		if probeErr != nil {
			err = probeErr
		}
		return Dimensions{}, fmt.Errorf("media: probe %s: %w", a.Name(), err)
	}
	for _, b := range boxes {
		tkhd, ok := b.Payload.(*mp4.Tkhd)
		if !ok {
			continue
		}
		// Track header sizes are 16.16 fixed point.
		w, h := int(tkhd.Width>>16), int(tkhd.Height>>16)
		if w > 0 && h > 0 {
			return Dimensions{Width: w, Height: h}, nil
		}
	}
	return Dimensions{}, fmt.Errorf("media: %s has no video track", a.Name())
}

// webmTrackTypeVideo is the Matroska TrackType of video tracks.
const webmTrackTypeVideo = 1

type webmFile struct {
	Segment webmSegment `ebml:"Segment"`
}

type webmSegment struct {
	Tracks webmTracks `ebml:"Tracks"`
}

type webmTracks struct {
	TrackEntry []webmTrackEntry `ebml:"TrackEntry"`
}

type webmTrackEntry struct {
	TrackNumber uint64    `ebml:"TrackNumber"`
	TrackType   uint64    `ebml:"TrackType"`
	Video       webmVideo `ebml:"Video"`
}

type webmVideo struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

// WebMProber reads the pixel size of the first video track of a WebM
// (Matroska) container.
type WebMProber struct{}

func (WebMProber) ProbeVideo(ctx context.Context, a Attachment) (Dimensions, error) {
	r, err := openForProbe(ctx, a)
	if err != nil {
		return Dimensions{}, err
	}
	defer r.Close()

	var f webmFile
	if err := ebml.Unmarshal(r, &f); err != nil {
		return Dimensions{}, fmt.Errorf("media: probe %s: %w", a.Name(), err)
	}
	for _, tr := range f.Segment.Tracks.TrackEntry {
		v := tr.Video
		if tr.TrackType != webmTrackTypeVideo || v.PixelWidth == 0 || v.PixelHeight == 0 {
			continue
		}
		return Dimensions{Width: int(v.PixelWidth), Height: int(v.PixelHeight)}, nil
	}
	return Dimensions{}, fmt.Errorf("media: %s has no video track", a.Name())
}

var (
	aviForm     = riff.FourCC{'A', 'V', 'I', ' '}
	aviHeaderID = riff.FourCC{'h', 'd', 'r', 'l'}
	aviMainID   = riff.FourCC{'a', 'v', 'i', 'h'}
)

// aviMainHeaderLen is the size of the avih chunk; frame width and height
// are the little-endian words at offsets 32 and 36.
const aviMainHeaderLen = 56

// AVIProber reads the frame size from the main header of a RIFF AVI file.
type AVIProber struct{}

func (AVIProber) ProbeVideo(ctx context.Context, a Attachment) (Dimensions, error) {
	r, err := openForProbe(ctx, a)
	if err != nil {
		return Dimensions{}, err
	}
	defer r.Close()

	form, chunks, err := riff.NewReader(r)
	if err != nil {
		return Dimensions{}, fmt.Errorf("media: probe %s: %w", a.Name(), err)
	}
	if form != aviForm {
		return Dimensions{}, fmt.Errorf("media: probe %s: RIFF form %q is not AVI", a.Name(), form[:])
	}

	for {
		id, n, data, err := chunks.Next()
		if err != nil {
			return Dimensions{}, fmt.Errorf("media: probe %s: no AVI header: %w", a.Name(), err)
		}
		if id != riff.LIST {
			continue
		}
		listType, list, err := riff.NewListReader(n, data)
		if err != nil {
			return Dimensions{}, fmt.Errorf("media: probe %s: %w", a.Name(), err)
		}
		if listType != aviHeaderID {
			continue
		}
		return readAVIMainHeader(a.Name(), list)
	}
}

func readAVIMainHeader(name string, list *riff.Reader) (Dimensions, error) {
	id, n, data, err := list.Next()
	if err != nil {
		return Dimensions{}, fmt.Errorf("media: probe %s: %w", name, err)
	}
	if id != aviMainID || n < aviMainHeaderLen {
		return Dimensions{}, fmt.Errorf("media: probe %s: hdrl does not start with avih", name)
	}
	buf := make([]byte, aviMainHeaderLen)
	if _, err := io.ReadFull(data, buf); err != nil {
		return Dimensions{}, fmt.Errorf("media: probe %s: %w", name, err)
	}
	w := binary.LittleEndian.Uint32(buf[32:36])
	h := binary.LittleEndian.Uint32(buf[36:40])
	if w == 0 || h == 0 {
		return Dimensions{}, fmt.Errorf("media: %s declares no frame size", name)
	}
	return Dimensions{Width: int(w), Height: int(h)}, nil
}
