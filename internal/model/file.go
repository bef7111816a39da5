package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/resource"
	"go.uber.org/zap"
)

const fileVersion = 1

// Component type tags inside a model file.
const (
	compEnd      = 0
	compObject3D = 1
	compSfx      = 2
	compMotion   = 3
	compSkeleton = 4
)

type Object3D struct {
	Name         string
	BBMin, BBMax mgl32.Vec3
}

type SfxDef struct {
	Name         string
	BBMin, BBMax mgl32.Vec3
	Frames       int32
}

type Motion struct {
	Name   string
	Frames int32
}

type Skeleton struct {
	Name  string
	Bones int32
}

// FileData is the parsed content of a model file.
type FileData struct {
	Objects  []Object3D
	Sfx      *SfxDef
	Motion   *Motion
	Skeleton *Skeleton
}

// ParseFile decodes a model file payload.
func ParseFile(payload []byte) (*FileData, error) {
	r := data.NewReader(payload)
	if v := r.U8(); v != fileVersion {
		return nil, fmt.Errorf("model file version %d, want %d", v, fileVersion)
	}

	fd := &FileData{}
	for r.Err() == nil {
		typ := r.U8()
		if typ == compEnd {
			break
		}
		name := r.String(int(r.U8()))

		switch typ {
		case compObject3D:
			fd.Objects = append(fd.Objects, Object3D{Name: name, BBMin: r.Vec3(), BBMax: r.Vec3()})
		case compSfx:
			fd.Sfx = &SfxDef{Name: name, BBMin: r.Vec3(), BBMax: r.Vec3(), Frames: r.I32()}
		case compMotion:
			fd.Motion = &Motion{Name: name, Frames: r.I32()}
		case compSkeleton:
			fd.Skeleton = &Skeleton{Name: name, Bones: r.I32()}
		default:
			return nil, fmt.Errorf("model file: unknown component type %d", typ)
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parse model file: %w", err)
	}
	return fd, nil
}

// EncodeFile writes fd in the model file format.
func EncodeFile(fd *FileData) []byte {
	w := data.NewWriter()
	w.U8(fileVersion)

	header := func(typ uint8, name string) {
		w.U8(typ)
		w.U8(uint8(len(name)))
		w.String(name)
	}
	for _, o := range fd.Objects {
		header(compObject3D, o.Name)
		w.Vec3(o.BBMin)
		w.Vec3(o.BBMax)
	}
	if fd.Sfx != nil {
		header(compSfx, fd.Sfx.Name)
		w.Vec3(fd.Sfx.BBMin)
		w.Vec3(fd.Sfx.BBMax)
		w.I32(fd.Sfx.Frames)
	}
	if fd.Motion != nil {
		header(compMotion, fd.Motion.Name)
		w.I32(fd.Motion.Frames)
	}
	if fd.Skeleton != nil {
		header(compSkeleton, fd.Skeleton.Name)
		w.I32(fd.Skeleton.Bones)
	}
	w.U8(compEnd)
	return w.Bytes()
}

// File is a streamed model file shared by every model that references it.
type File struct {
	*resource.Resource
	name string
	data *FileData
}

func newFile(name, path string, req resource.Requester, log *zap.Logger) *File {
	f := &File{name: name}
	f.Resource = resource.New(path, req, log, func(payload []byte) error {
		fd, err := ParseFile(payload)
		if err != nil {
			return err
		}
		f.data = fd
		return nil
	})
	return f
}

func (f *File) Name() string { return f.name }

// Data returns the parsed content, nil until loaded.
func (f *File) Data() *FileData { return f.data }
