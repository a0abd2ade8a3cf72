// Package metadata writes the per-image photogrammetry metadata the
// coordinate transformer (C5) and scan orchestrator (C7) attach to every
// capture: EXIF GPS-field repurposing, XMP sidecar files, and plain-text
// camera-position manifests, per spec.md §4.5 and §6.
package metadata

import (
	"bytes"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"github.com/nasa-jpl/scanctl/coords"
	"github.com/nasa-jpl/scanctl/mathx"
)

// Position is the per-image Cartesian position and orientation the
// coordinate transformer computes for one capture.
type Position struct {
	World  coords.Cartesian
	Orient coords.Euler
	CamID  string
}

// toDMS decomposes a plain linear millimetre value into a (degrees,
// minutes, seconds) triple the way the GPS IFD's rational fields expect,
// per the documented repurposing in spec.md §9 Open Question 1: this is
// not a geographic coordinate, only the GPS tag's DMS rational encoding
// borrowed to carry a flat linear value without loss of precision.
func toDMS(mm float64) (deg, min, sec exifcommon.Rational) {
	neg := mm < 0
	if neg {
		mm = -mm
	}
	d := int64(mm)
	remMin := (mm - float64(d)) * 60
	m := int64(remMin)
	remSec := (remMin - float64(m)) * 60
	// encode seconds to 1/10000 precision, rounded rather than truncated so
	// the DMS round-trip doesn't drift low by up to one 1/10000 s step every
	// call; degrees/minutes are always integral here since mm itself is the
	// whole-number-dominant part. The magnitude is encoded here; the sign is
	// carried by the GPS ref fields.
	secNum := uint32(mathx.Round(remSec*10000, 1))
	return exifcommon.Rational{Numerator: uint32(d), Denominator: 1},
		exifcommon.Rational{Numerator: uint32(m), Denominator: 1},
		exifcommon.Rational{Numerator: secNum, Denominator: 10000}
}

func refFor(v float64, posRef, negRef string) string {
	if v < 0 {
		return negRef
	}
	return posRef
}

// WriteEXIF re-serialises a JPEG with its GPSLatitude/Longitude/Altitude
// fields repurposed to carry p.World's X/Y/Z in millimetres, and
// UserComment set to the stereo orientation string. No geographic
// semantics are intended; this is the documented limitation in spec.md §9.
func WriteEXIF(jpegBytes []byte, p Position) ([]byte, error) {
	jmp := jpegstructure.NewJpegMediaParser()
	intfc, err := jmp.ParseBytes(jpegBytes)
	if err != nil {
		return nil, fmt.Errorf("metadata: parse jpeg: %w", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return nil, fmt.Errorf("metadata: ifd mapping: %w", err)
		}
		ti := exif.NewTagIndex()
		rootIb = exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	gpsIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/GPSInfo")
	if err != nil {
		return nil, fmt.Errorf("metadata: gps ifd: %w", err)
	}

	latD, latM, latS := toDMS(p.World.X)
	lonD, lonM, lonS := toDMS(p.World.Y)
	altD, altM, altS := toDMS(p.World.Z)

	if err := gpsIb.SetStandardWithName("GPSLatitudeRef", refFor(p.World.X, "N", "S")); err != nil {
		return nil, err
	}
	if err := gpsIb.SetStandardWithName("GPSLatitude", []exifcommon.Rational{latD, latM, latS}); err != nil {
		return nil, err
	}
	if err := gpsIb.SetStandardWithName("GPSLongitudeRef", refFor(p.World.Y, "E", "W")); err != nil {
		return nil, err
	}
	if err := gpsIb.SetStandardWithName("GPSLongitude", []exifcommon.Rational{lonD, lonM, lonS}); err != nil {
		return nil, err
	}
	if err := gpsIb.SetStandardWithName("GPSAltitudeRef", byte(0)); err != nil {
		return nil, err
	}
	if err := gpsIb.SetStandardWithName("GPSAltitude", []exifcommon.Rational{altD, altM, altS}); err != nil {
		return nil, err
	}

	comment := fmt.Sprintf("Stereo Cam%s Orient: ω=%.3f φ=%.3f κ=%.3f",
		p.CamID, p.Orient.Omega, p.Orient.Phi, p.Orient.Kappa)
	if err := rootIb.SetStandardWithName("UserComment", comment); err != nil {
		return nil, err
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("metadata: set exif: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := sl.Write(buf); err != nil {
		return nil, fmt.Errorf("metadata: write jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
