// Package artifact extracts code artifacts from agent replies and provides
// an in-memory core.ArtifactStore.
//
// Agents mark a file with a fenced block whose opening line names the file
// and its language:
//
//	```CODE_OUTPUT:answer.py:python
//	print(42)
//	```
//
// Extract removes the first such block from the reply and returns it as a
// core.Artifact. The canonical ArtifactStore interface lives in the core
// package; durable implementations live under storage/.
package artifact
