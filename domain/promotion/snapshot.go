package promotion

import "fmt"

// ProjectSnapshot is an immutable copy of a project's cost data taken when
// the request is created.
type ProjectSnapshot struct {
	ProjectID    string       `json:"project_id"`
	ProjectName  string       `json:"project_name"`
	Amount       int64        `json:"amount"`
	BuildingArea float64      `json:"building_area"`
	Completeness int          `json:"completeness"`
	SubProjects  []SubProject `json:"sub_projects,omitempty"`
}

// SubProject is one building or structure within a project.
type SubProject struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	BuildingArea      float64  `json:"building_area"`
	StructureType     *string  `json:"structure_type,omitempty"`
	AboveGroundFloors *int     `json:"above_ground_floors,omitempty"`
	UndergroundFloors *int     `json:"underground_floors,omitempty"`
	BuildingHeight    *float64 `json:"building_height,omitempty"`
	Amount            int64    `json:"amount"`
}

// Validate checks the snapshot is usable as promotion input.
func (s *ProjectSnapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: snapshot is nil", ErrInvalidSnapshot)
	}
	if s.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidSnapshot)
	}
	if s.Completeness < 0 || s.Completeness > 100 {
		return fmt.Errorf("%w: completeness %d outside 0-100", ErrInvalidSnapshot, s.Completeness)
	}
	if s.Amount < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidSnapshot)
	}
	if s.BuildingArea < 0 {
		return fmt.Errorf("%w: negative building area", ErrInvalidSnapshot)
	}
	for i, sp := range s.SubProjects {
		if sp.ID == "" {
			return fmt.Errorf("%w: sub project %d has no id", ErrInvalidSnapshot, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *ProjectSnapshot) Clone() *ProjectSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	if s.SubProjects != nil {
		c.SubProjects = make([]SubProject, len(s.SubProjects))
		for i, sp := range s.SubProjects {
			c.SubProjects[i] = sp.clone()
		}
	}
	return &c
}

func (sp SubProject) clone() SubProject {
	c := sp
	if sp.StructureType != nil {
		v := *sp.StructureType
		c.StructureType = &v
	}
	if sp.AboveGroundFloors != nil {
		v := *sp.AboveGroundFloors
		c.AboveGroundFloors = &v
	}
	if sp.UndergroundFloors != nil {
		v := *sp.UndergroundFloors
		c.UndergroundFloors = &v
	}
	if sp.BuildingHeight != nil {
		v := *sp.BuildingHeight
		c.BuildingHeight = &v
	}
	return c
}
