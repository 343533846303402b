package model

import "techroute/internal/opt"

// Wire types for instances and solutions. Times are plain numbers in the
// unit of the travel matrix (usually minutes after the start of the day).

type Location struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// TimeWindow is absent (nil) for an open window.
type TimeWindow struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Soft  bool    `json:"soft,omitempty" yaml:"soft,omitempty"`
}

type DepotIn struct {
	Location   Location    `json:"location" yaml:"location"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty" yaml:"timeWindow,omitempty"`
	ServiceMin float64     `json:"serviceMin,omitempty" yaml:"serviceMin,omitempty"`
}

type TechnicianIn struct {
	ID          string      `json:"id" yaml:"id"`
	Home        Location    `json:"home" yaml:"home"`
	Shift       *TimeWindow `json:"shift,omitempty" yaml:"shift,omitempty"`
	Skills      []int       `json:"skills,omitempty" yaml:"skills,omitempty"`
	Tools       []int       `json:"tools,omitempty" yaml:"tools,omitempty"`
	Capacity    []float64   `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	MaxRequests int         `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`
}

type RequestIn struct {
	ID         string      `json:"id" yaml:"id"`
	Location   Location    `json:"location" yaml:"location"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty" yaml:"timeWindow,omitempty"`
	ServiceMin float64     `json:"serviceMin,omitempty" yaml:"serviceMin,omitempty"`
	Skills     []int       `json:"skills,omitempty" yaml:"skills,omitempty"`
	Tools      []int       `json:"tools,omitempty" yaml:"tools,omitempty"`
	Parts      []float64   `json:"parts,omitempty" yaml:"parts,omitempty"`
}

// InstanceIn is an uploaded problem. Travel, when set, is a square matrix
// over the node order depot, technician homes, requests.
type InstanceIn struct {
	Name            string         `json:"name,omitempty" yaml:"name,omitempty"`
	AllowDepotTrips bool           `json:"allowDepotTrips,omitempty" yaml:"allowDepotTrips,omitempty"`
	Depot           DepotIn        `json:"depot" yaml:"depot"`
	Technicians     []TechnicianIn `json:"technicians" yaml:"technicians"`
	Requests        []RequestIn    `json:"requests" yaml:"requests"`
	Travel          [][]float64    `json:"travel,omitempty" yaml:"travel,omitempty"`
}

type InstanceOut struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Technicians int    `json:"technicians"`
	Requests    int    `json:"requests"`
	CreatedAt   string `json:"createdAt"`
}

// SolveRequest asks for a solution of a stored instance. Technician limits a
// split to one technician; GiantTour lists request ids in the order to split.
type SolveRequest struct {
	InstanceID string         `json:"instanceId"`
	Algorithm  string         `json:"algorithm,omitempty"`
	GiantTour  []string       `json:"giantTour,omitempty"`
	Technician string         `json:"technician,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

type InsertRequest struct {
	Request string `json:"request"`
}

// VisitOut is one stop of a tour. Slack is omitted when unbounded.
type VisitOut struct {
	Node      int      `json:"node"`
	Kind      string   `json:"kind"`
	Request   string   `json:"request,omitempty"`
	Arrival   float64  `json:"arrival"`
	Start     float64  `json:"start"`
	Departure float64  `json:"departure"`
	Slack     *float64 `json:"slack,omitempty"`
}

type TourOut struct {
	Technician string     `json:"technician"`
	Requests   []string   `json:"requests"`
	Visits     []VisitOut `json:"visits"`
	Cost       float64    `json:"cost"`
	DepotTrip  bool       `json:"depotTrip,omitempty"`
}

type SolutionOut struct {
	ID         string         `json:"id"`
	InstanceID string         `json:"instanceId"`
	Algorithm  string         `json:"algorithm"`
	Objective  string         `json:"objective"`
	Cost       float64        `json:"cost"`
	Tours      []TourOut      `json:"tours"`
	Unserved   []string       `json:"unserved"`
	Metrics    opt.RunMetrics `json:"metrics"`
	Options    opt.Options    `json:"options"`
	CreatedAt  string         `json:"createdAt,omitempty"`
	UpdatedAt  string         `json:"updatedAt,omitempty"`
}

// Event is published on the solution event stream.
type Event struct {
	Type       string         `json:"type"`
	SolutionID string         `json:"solutionId"`
	TS         string         `json:"ts"`
	Data       map[string]any `json:"data,omitempty"`
}
