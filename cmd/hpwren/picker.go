package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/John-Robertt/hpwren/internal/domain"
)

var errNoCameras = errors.New("归档根目录中没有任何相机")

// chooseCamera 读取归档根目录的相机列表，并在终端里让用户选择（支持输入过滤）。
func chooseCamera(ctx context.Context, cwd, configPath string) (domain.CameraID, error) {
	arc, st, err := newArchiveClient(ctx, cwd, configPath)
	if err != nil {
		return "", err
	}
	cams, err := arc.ListCameras(ctx, st.Layout.BaseURL)
	if err != nil {
		return "", err
	}
	if len(cams) == 0 {
		return "", errNoCameras
	}

	items := make([]string, len(cams))
	for i, c := range cams {
		items[i] = string(c)
	}

	prompt := promptui.Select{
		Label: fmt.Sprintf("选择相机（共 %d 个，输入 / 过滤）", len(items)),
		Items: items,
		Size:  15,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "> {{ . | cyan }}",
			Inactive: "  {{ . }}",
			Selected: "相机：{{ . | green }}",
		},
		Searcher: cameraSearcher(items),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", errors.New("已取消")
		}
		return "", err
	}
	return cams[idx], nil
}

// cameraSearcher 按子串（忽略大小写）过滤相机 ID。
func cameraSearcher(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		input = strings.ToLower(strings.TrimSpace(input))
		if input == "" {
			return true
		}
		return strings.Contains(strings.ToLower(items[index]), input)
	}
}
