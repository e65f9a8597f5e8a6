package edition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/winforge/pkg/dism"
)

func multiEditionImage() []dism.ImageInfo {
	return []dism.ImageInfo{
		{Index: 1, Name: "Windows 11 Home", Edition: "Core"},
		{Index: 2, Name: "Windows 11 Home N", Edition: "CoreN"},
		{Index: 3, Name: "Windows 11 Pro", Edition: "Professional"},
		{Index: 4, Name: "Windows 11 Pro Education", Edition: "ProfessionalEducation"},
	}
}

func TestDetect(t *testing.T) {
	t.Run("PrefersProfessional", func(t *testing.T) {
		info, err := Detect(multiEditionImage(), "")
		require.NoError(t, err)
		assert.Equal(t, 3, info.Index)
	})

	t.Run("OverrideByName", func(t *testing.T) {
		info, err := Detect(multiEditionImage(), "Home N")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Index)
	})

	t.Run("OverrideByEditionID", func(t *testing.T) {
		info, err := Detect(multiEditionImage(), "Core")
		require.NoError(t, err)
		assert.Equal(t, 1, info.Index)
	})

	t.Run("UnknownOverrideListsAvailable", func(t *testing.T) {
		_, err := Detect(multiEditionImage(), "Ultimate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Windows 11 Pro")
	})

	t.Run("SingleImageFallback", func(t *testing.T) {
		infos := []dism.ImageInfo{{Index: 1, Name: "Windows 10 Enterprise LTSC", Edition: "EnterpriseS"}}
		info, err := Detect(infos, "")
		require.NoError(t, err)
		assert.Equal(t, 1, info.Index)
	})

	t.Run("AmbiguousWithoutProfessional", func(t *testing.T) {
		infos := []dism.ImageInfo{
			{Index: 1, Name: "Windows 11 Home", Edition: "Core"},
			{Index: 2, Name: "Windows 11 Home N", Edition: "CoreN"},
		}
		_, err := Detect(infos, "")
		require.Error(t, err)
	})

	t.Run("EmptyMetadata", func(t *testing.T) {
		_, err := Detect(nil, "")
		require.Error(t, err)
	})
}

func TestIsLTSC(t *testing.T) {
	assert.True(t, IsLTSC(dism.ImageInfo{Edition: "EnterpriseS"}))
	assert.True(t, IsLTSC(dism.ImageInfo{Edition: "IoTEnterpriseS"}))
	assert.True(t, IsLTSC(dism.ImageInfo{Name: "Windows 10 Enterprise LTSC 2021"}))
	assert.False(t, IsLTSC(dism.ImageInfo{Name: "Windows 11 Pro", Edition: "Professional"}))
}

func TestLTSCName(t *testing.T) {
	assert.Equal(t, "LTSC 2019", LTSCName(dism.ImageInfo{Edition: "EnterpriseS", Version: "10.0.17763"}))
	assert.Equal(t, "LTSC 2021", LTSCName(dism.ImageInfo{Edition: "EnterpriseS", Version: "10.0.19044"}))
	assert.Equal(t, "LTSC 2024", LTSCName(dism.ImageInfo{Edition: "IoTEnterpriseS", Version: "10.0.26100"}))
	assert.Equal(t, "LTSC", LTSCName(dism.ImageInfo{Edition: "EnterpriseS", Version: "10.0.14393"}))
	assert.Equal(t, "", LTSCName(dism.ImageInfo{Edition: "Professional", Version: "10.0.22621"}))
}

func TestSupportsStore(t *testing.T) {
	t.Run("ModernBuild", func(t *testing.T) {
		ok, err := SupportsStore(dism.ImageInfo{Version: "10.0.19044"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("BaselineBuild", func(t *testing.T) {
		ok, err := SupportsStore(dism.ImageInfo{Version: "10.0.17763"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("TooOld", func(t *testing.T) {
		ok, err := SupportsStore(dism.ImageInfo{Version: "10.0.14393"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MissingVersion", func(t *testing.T) {
		_, err := SupportsStore(dism.ImageInfo{})
		require.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := SupportsStore(dism.ImageInfo{Version: "not-a-version"})
		require.Error(t, err)
	})
}
