package a2a

/*
Artifact is the output of a task.
*/
type Artifact struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Index       int            `json:"index,omitempty"`
	Append      *bool          `json:"append,omitempty"`
	LastChunk   *bool          `json:"lastChunk,omitempty"`
}

func NewTextArtifact(name, description, text string) Artifact {
	return Artifact{
		Name:        &name,
		Description: &description,
		Parts: []Part{
			{Type: PartTypeText, Text: text},
		},
	}
}

func NewDataArtifact(name, description string, data map[string]any) Artifact {
	return Artifact{
		Name:        &name,
		Description: &description,
		Parts: []Part{
			{Type: PartTypeData, Data: data},
		},
	}
}

func NewFileArtifact(name string, mimeType string, data string) Artifact {
	return Artifact{
		Name: &name,
		Parts: []Part{
			{
				Type: PartTypeFile,
				File: &FilePart{
					MimeType: &mimeType,
					Data:     data,
				},
			},
		},
	}
}
