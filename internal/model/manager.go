package model

import (
	"fmt"
	"path"

	"github.com/terrastream/terrastream/internal/data"
	"github.com/terrastream/terrastream/internal/resource"
	"go.uber.org/zap"
)

// Manager creates models from the project catalog. It keeps one reference
// to every shared static mesh and every model file it has started loading.
// Loop goroutine only.
type Manager struct {
	catalog *data.ModelCatalog
	req     resource.Requester
	dir     string
	log     *zap.Logger

	meshes map[*data.ModelProp]*Model
	files  map[string]*File
}

func NewManager(catalog *data.ModelCatalog, req resource.Requester, dir string, log *zap.Logger) *Manager {
	return &Manager{
		catalog: catalog,
		req:     req,
		dir:     dir,
		log:     log,
		meshes:  make(map[*data.ModelProp]*Model),
		files:   make(map[string]*File),
	}
}

// Create resolves (type, id) to a model. The caller owns one reference and
// must Release it.
func (m *Manager) Create(t data.ObjectType, id int32) (*Model, error) {
	prop := m.catalog.Prop(t, id)
	if prop == nil {
		return nil, fmt.Errorf("%s %d: %w", t, id, ErrUnknownModel)
	}

	switch prop.ModelType {
	case data.ModelMesh:
		if mesh, ok := m.meshes[prop]; ok {
			mesh.Retain()
			return mesh, nil
		}
		mesh := newModel(prop, m.File(prop.File))
		m.meshes[prop] = mesh
		mesh.Retain()
		return mesh, nil
	case data.ModelAnimated, data.ModelEffect:
		return newModel(prop, m.File(prop.File)), nil
	default:
		return nil, fmt.Errorf("%s %d: model type %d: %w", t, id, prop.ModelType, ErrUnknownModel)
	}
}

// File returns the cached model file for name, starting its load the
// first time it is requested.
func (m *Manager) File(name string) *File {
	if f, ok := m.files[name]; ok {
		return f
	}
	f := newFile(name, path.Join(m.dir, name+".bin"), m.req, m.log)
	m.files[name] = f
	f.StartLoad()
	return f
}

// Stats returns the number of shared meshes and cached files.
func (m *Manager) Stats() (meshes, files int) {
	return len(m.meshes), len(m.files)
}

// Close drops the manager's references.
func (m *Manager) Close() {
	for prop, mesh := range m.meshes {
		mesh.Release()
		delete(m.meshes, prop)
	}
	for name, f := range m.files {
		f.Release()
		delete(m.files, name)
	}
}
