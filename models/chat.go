package models

// MessageRequest is the body accepted by /ai-chat and /speech-chat.
type MessageRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type SpeechResponse struct {
	Status         string  `json:"status"`
	RecognizedText string  `json:"recognized_text"`
	DriveFileID    string  `json:"drive_file_id"`
	DriveLink      string  `json:"drive_link"`
	TTSResponse    *string `json:"tts_response"` // null when no answer could be fetched
	ResponseStatus string  `json:"response_status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type ObjectRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Container string `json:"container"`
}
