package stages

import "path/filepath"

// Local staging layout: one directory per video id under StagingDir,
// holding the downloaded source, the extracted audio track, and one clip
// file per moment.

func videoDir(stagingDir, videoID string) string {
	return filepath.Join(stagingDir, videoID)
}

func sourcePath(stagingDir, videoID string) string {
	return filepath.Join(videoDir(stagingDir, videoID), "source.mp4")
}

func audioPath(stagingDir, videoID string) string {
	return filepath.Join(videoDir(stagingDir, videoID), "audio.wav")
}

func clipPath(stagingDir, videoID, momentID string) string {
	return filepath.Join(videoDir(stagingDir, videoID), "clip_"+momentID+".mp4")
}

func cloudSourcePath(videoID string) string  { return videoID + "/source.mp4" }
func cloudAudioPath(videoID string) string   { return videoID + "/audio.wav" }
func cloudClipPath(videoID, momentID string) string {
	return videoID + "/clips/" + momentID + ".mp4"
}
