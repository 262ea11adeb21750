package tripflow

import "testing"

func TestMessageList(t *testing.T) {
	t.Run("AddAndLen", func(t *testing.T) {
		ml := NewMessageList()
		ml.Add(UserMessage("hello"))
		ml.Add(AssistantMessage("hi"), UserMessage("bye"))
		if ml.Len() != 3 {
			t.Fatalf("Expected 3 messages, got %d", ml.Len())
		}
	})

	t.Run("AddFirstDeveloperMessage", func(t *testing.T) {
		ml := NewMessageList()
		ml.Add(UserMessage("hello"))
		ml.AddFirstDeveloperMessage(DeveloperMessage("you are a travel agent"))
		if ml.Len() != 2 {
			t.Fatalf("Expected 2 messages, got %d", ml.Len())
		}
		if ml.Messages[0].OfDeveloper == nil {
			t.Fatalf("Expected the developer message to be first")
		}
	})

	t.Run("AddFirstDeveloperMessagePanicsOnWrongRole", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatalf("Expected panic when prepending a non-developer message")
			}
		}()
		ml := NewMessageList()
		ml.AddFirstDeveloperMessage(UserMessage("not a developer message"))
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		ml := NewMessageList()
		ml.Add(UserMessage("hello"))
		cloned := ml.Clone()
		cloned.Add(AssistantMessage("hi"))
		if ml.Len() != 1 {
			t.Fatalf("Expected original list to be untouched, got %d messages", ml.Len())
		}
		if cloned.Len() != 2 {
			t.Fatalf("Expected clone to have 2 messages, got %d", cloned.Len())
		}
	})

	t.Run("LastUserMessageString", func(t *testing.T) {
		ml := NewMessageList()
		if got := ml.LastUserMessageString(); got != "" {
			t.Fatalf("Expected empty string for empty list, got %q", got)
		}
		ml.Add(UserMessage("first"))
		ml.Add(AssistantMessage("reply"))
		ml.Add(UserMessage("second"))
		if got := ml.LastUserMessageString(); got != "second" {
			t.Fatalf("Expected most recent user message, got %q", got)
		}
	})
}
