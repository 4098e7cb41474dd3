package models

// GraphNode is a file in the repository knowledge graph.
type GraphNode struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group int    `json:"group"`
}

// GraphLink is an import edge between two files.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the file/import graph of an ingested repository.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}
